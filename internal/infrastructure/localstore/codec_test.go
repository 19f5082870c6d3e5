package localstore

import (
	"bytes"
	"strings"
	"testing"

	"github.com/Darlyn2425/AgenciaViajeHub-sub001/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocument() Document {
	doc := newDocument()
	doc.Collections[shared.CollectionClients] = []shared.Record{
		{ID: "c-1", TenantID: "agency-a", Fields: map[string]any{"name": "Ana", "notes": strings.Repeat("frequent flyer ", 50)}},
		{ID: "c-2", TenantID: "agency-b", Fields: map[string]any{"name": "Luis"}},
	}
	doc.Meta.ActiveTenant = "agency-a"
	doc.Meta.SyncedOnce = map[string][]shared.Collection{"agency-a": {shared.CollectionPaymentPlans}}
	return doc
}

func TestCodec_RoundTrip(t *testing.T) {
	for _, compression := range []Compression{CompressionNone, CompressionSnappy} {
		t.Run(string(compression), func(t *testing.T) {
			codec := Codec{Compression: compression}
			data, err := codec.Encode(sampleDocument())
			require.NoError(t, err)
			assert.Equal(t, compression == CompressionSnappy, bytes.HasPrefix(data, snappyMagic))

			doc, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, snapshotVersion, doc.Version)
			assert.Equal(t, "agency-a", doc.Meta.ActiveTenant)
			require.Len(t, doc.Collections[shared.CollectionClients], 2)
			assert.Equal(t, "Luis", doc.Collections[shared.CollectionClients][1].GetString("name"))
		})
	}
}

func TestCodec_SnappyIsSmaller(t *testing.T) {
	plain, err := Codec{Compression: CompressionNone}.Encode(sampleDocument())
	require.NoError(t, err)
	packed, err := Codec{Compression: CompressionSnappy}.Encode(sampleDocument())
	require.NoError(t, err)
	assert.Less(t, len(packed), len(plain))
}

func TestCodec_ReadsEitherFormat(t *testing.T) {
	packed, err := Codec{Compression: CompressionSnappy}.Encode(sampleDocument())
	require.NoError(t, err)

	doc, err := Codec{Compression: CompressionNone}.Decode(packed)
	require.NoError(t, err)
	assert.Len(t, doc.Collections[shared.CollectionClients], 2)
}

func TestCodec_DecodeEmptyAndCorrupt(t *testing.T) {
	codec := Codec{}

	doc, err := codec.Decode(nil)
	require.NoError(t, err)
	assert.Empty(t, doc.Collections)
	assert.NotNil(t, doc.Collections)

	doc, err = codec.Decode([]byte("{not json"))
	assert.Error(t, err)
	assert.NotNil(t, doc.Collections)

	_, err = codec.Decode(append(append([]byte(nil), snappyMagic...), 0xff, 0xff))
	assert.Error(t, err)
}

func TestCodec_LegacyDocumentWithoutVersion(t *testing.T) {
	doc, err := Codec{}.Decode([]byte(`{"collections":{"clients":[{"id":"c-1","name":"Ana"}]}}`))
	require.NoError(t, err)
	assert.Equal(t, snapshotVersion, doc.Version)
	require.Len(t, doc.Collections[shared.CollectionClients], 1)
	assert.Empty(t, doc.Collections[shared.CollectionClients][0].TenantID)
}
