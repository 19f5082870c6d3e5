// Package printing turns paged agency documents into PDFs.
//
// This package contains:
//   - TemplateEngine, which renders content blocks and the paged document with html/template
//   - Browser, a shared headless Chrome driven through chromedp
//   - ChromedpRenderer, the PDFRenderer printing a document with Chrome
//   - ChromedpMeasurer and EstimateMeasurer, which report block heights to the paginator
//   - FileSystemStorage and ObjectPDFStorage, the PDFStorage implementations
//
// Example usage:
//
//	browser := NewBrowser(&ChromedpConfig{DefaultTimeout: 30 * time.Second})
//	defer browser.Close()
//
//	result, err := NewChromedpRenderer(browser).Render(ctx, &RenderRequest{
//	    HTML:  html,
//	    Paper: PaperA4,
//	})
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Generated PDF: %d pages\n", result.PageCount)
package printing
