package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

const pdfMimeType = "application/pdf"

// PageSplitter turns an uploaded file into one PNG image per physical page
type PageSplitter struct {
	enhance bool
}

// NewPageSplitter creates a PageSplitter. With enhance set, every page is
// converted to high contrast grayscale before it is handed to a scanner.
func NewPageSplitter(enhance bool) *PageSplitter {
	return &PageSplitter{enhance: enhance}
}

// Split returns the pages of a PDF or image upload as PNG data, in document order
func (p *PageSplitter) Split(data []byte, contentType string) ([][]byte, error) {
	mimeType := normalizeMimeType(contentType)

	if mimeType == pdfMimeType {
		images, err := pdfToImages(data)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to images: %w", err)
		}
		pages := make([][]byte, 0, len(images))
		for i, img := range images {
			pngData, err := p.encodePage(img)
			if err != nil {
				return nil, fmt.Errorf("encoding PDF page %d: %w", i+1, err)
			}
			pages = append(pages, pngData)
		}
		return pages, nil
	}

	if mimeType == "image/png" && !p.enhance && !isHEICFormat(data) {
		return [][]byte{data}, nil
	}

	img, err := decodeImage(data, mimeType)
	if err != nil {
		return nil, err
	}
	pngData, err := p.encodePage(img)
	if err != nil {
		return nil, err
	}
	return [][]byte{pngData}, nil
}

func (p *PageSplitter) encodePage(img image.Image) ([]byte, error) {
	if p.enhance {
		img = enhanceForOCR(img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// enhanceForOCR boosts contrast and sharpness so faint scans read better
func enhanceForOCR(img image.Image) image.Image {
	out := imaging.Grayscale(img)
	out = imaging.AdjustContrast(out, 30)
	out = imaging.Sharpen(out, 1.5)
	return imaging.AdjustGamma(out, 1.2)
}

// pdfToImages renders every page of a PDF
func pdfToImages(pdfData []byte) ([]image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	images := make([]image.Image, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		img, err := doc.Image(i)
		if err != nil {
			return nil, fmt.Errorf("rendering PDF page %d: %w", i+1, err)
		}
		images = append(images, img)
	}
	return images, nil
}

// decodeImage decodes any supported image format
func decodeImage(imageData []byte, mimeType string) (image.Image, error) {
	// Check for HEIC/HEIF format (common on iPhones) - Go's standard image package doesn't support it
	if isHEICFormat(imageData) || isHEICMimeType(mimeType) {
		img, err := heic.Decode(bytes.NewReader(imageData))
		if err != nil {
			return nil, fmt.Errorf("decoding HEIC/HEIF image: %w", err)
		}
		return img, nil
	}

	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		if strings.Contains(err.Error(), "unknown format") || strings.Contains(err.Error(), "unsupported") {
			return nil, fmt.Errorf("unsupported image format. Supported formats: JPEG, PNG, GIF, HEIC, HEIF, PDF. Error: %w", err)
		}
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	return img, nil
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files typically start with specific magic bytes
func isHEICFormat(data []byte) bool {
	if len(data) < 12 {
		return false
	}
	// ftyp box at offset 4 with brand 'heic', 'heif', 'mif1' or 'msf1'
	if string(data[4:8]) == "ftyp" {
		brand := string(data[8:12])
		if brand == "heic" || brand == "heif" || brand == "mif1" || brand == "msf1" {
			return true
		}
	}
	return false
}

// isHEICMimeType checks if the MIME type indicates HEIC/HEIF format
func isHEICMimeType(mimeType string) bool {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	return strings.Contains(mimeType, "heic") || strings.Contains(mimeType, "heif")
}

func normalizeMimeType(contentType string) string {
	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" {
		mimeType = "image/jpeg" // default
	}
	return mimeType
}

// prepareImageData converts a single page image to PNG for the vision APIs.
// PDFs must already be split into pages; a one page PDF is accepted.
func prepareImageData(imageData []byte, contentType string) ([]byte, error) {
	mimeType := normalizeMimeType(contentType)
	if mimeType == pdfMimeType {
		images, err := pdfToImages(imageData)
		if err != nil {
			return nil, fmt.Errorf("converting PDF to image: %w", err)
		}
		if len(images) != 1 {
			return nil, fmt.Errorf("expected a single page, got a %d page PDF", len(images))
		}
		return NewPageSplitter(false).encodePage(images[0])
	}
	pages, err := NewPageSplitter(false).Split(imageData, mimeType)
	if err != nil {
		return nil, fmt.Errorf("converting image to PNG: %w", err)
	}
	return pages[0], nil
}
