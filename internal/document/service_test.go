package document

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-pages/internal/invoice"
)

var _ = Describe("Service", func() {
	var (
		db       *mockDB
		scanner  *mockScanner
		storage  *mockStorage
		splitter *mockSplitter
		idGen    *mockIDGenerator
		timeSrc  *mockTimeSource
		service  *Service
		now      time.Time
	)

	BeforeEach(func() {
		db = newMockDB()
		scanner = newMockScanner()
		storage = newMockStorage()
		splitter = newMockSplitter()
		now = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		idGen = &mockIDGenerator{id: "doc-1"}
		timeSrc = &mockTimeSource{now: now}
		service = NewServiceWithDeps(db, scanner, storage, splitter, nil, 2, idGen, timeSrc)
	})

	Describe("ProcessDocument", func() {
		var (
			uploads []Upload
			doc     *Document
			err     error
		)

		BeforeEach(func() {
			uploads = []Upload{
				{Filename: "page one.png", ContentType: "image/png", Data: []byte("page-1")},
				{Filename: "page@two!.png", ContentType: "image/png", Data: []byte("page-2")},
			}
		})

		JustBeforeEach(func() {
			doc, err = service.ProcessDocument(context.Background(), uploads)
		})

		When("every page scans", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should number pages in upload order", func() {
				Expect(doc.ID).To(Equal("doc-1"))
				Expect(doc.PageCount).To(Equal(2))
				Expect(doc.Pages).To(HaveLen(2))
				Expect(doc.Pages[0].PageNumber).To(Equal(1))
				Expect(doc.Pages[1].PageNumber).To(Equal(2))
				Expect(doc.FailedPages).To(BeEmpty())
			})

			It("should classify each page", func() {
				Expect(doc.Pages[0].PageType).To(Equal(invoice.PageFirst))
				Expect(doc.Pages[1].PageType).To(Equal(invoice.PageLast))
				Expect(doc.Result.Metadata.PageTypes).To(Equal([]invoice.PageType{invoice.PageFirst, invoice.PageLast}))
			})

			It("should aggregate the pages into one invoice", func() {
				inv := doc.Result.Invoice
				Expect(inv.Supplier).To(Equal("Acme Ltd"))
				Expect(inv.InvoiceNumber).To(Equal("INV-1"))
				Expect(inv.LineItems).To(HaveLen(3))
				Expect(inv.Subtotal).To(Equal(150.0))
				Expect(inv.TaxAmount).To(Equal(30.0))
				Expect(inv.TotalAmount).To(Equal(180.0))
			})

			It("should validate the result", func() {
				Expect(doc.Validation.IsValid).To(BeTrue())
				Expect(doc.Validation.Errors).To(BeEmpty())
			})

			It("should store each page image", func() {
				Expect(storage.files).To(HaveKeyWithValue("doc-1_page_001.png", []byte("page-1")))
				Expect(storage.files).To(HaveKeyWithValue("doc-1_page_002.png", []byte("page-2")))
				Expect(doc.Pages[0].ImageURL).To(Equal("doc-1_page_001.png"))
			})

			It("should sanitize filenames", func() {
				Expect(doc.Filenames).To(Equal([]string{"page one.png", "pagetwo.png"}))
			})

			It("should save the document", func() {
				Expect(db.documents).To(HaveKey("doc-1"))
				Expect(doc.CreatedAt).To(Equal(now))
				Expect(doc.UpdatedAt).To(Equal(now))
			})
		})

		When("a PDF expands into several pages", func() {
			BeforeEach(func() {
				uploads = []Upload{
					{Filename: "invoice.pdf", ContentType: "application/pdf", Data: []byte("pdf")},
				}
				splitter.pages["pdf"] = [][]byte{[]byte("page-1"), []byte("page-2")}
			})

			It("should scan every page", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(doc.PageCount).To(Equal(2))
				Expect(doc.Filenames).To(Equal([]string{"invoice.pdf"}))
				Expect(scanner.calls).To(Equal(2))
				Expect(doc.Result.Invoice.TotalAmount).To(Equal(180.0))
			})
		})

		When("one page fails to scan", func() {
			BeforeEach(func() {
				scanner.errs["page-2"] = errors.New("model unavailable")
			})

			It("should keep the readable pages", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(doc.PageCount).To(Equal(2))
				Expect(doc.Pages).To(HaveLen(1))
				Expect(doc.Pages[0].PageNumber).To(Equal(1))
			})

			It("should record the failed page", func() {
				Expect(doc.FailedPages).To(HaveLen(1))
				Expect(doc.FailedPages[0].PageNumber).To(Equal(2))
				Expect(doc.FailedPages[0].Error).To(Equal("model unavailable"))
				Expect(doc.FailedPages[0].ImageURL).To(Equal("doc-1_page_002.png"))
			})

			It("should aggregate only the readable pages", func() {
				Expect(doc.Result.Metadata.TotalPages).To(Equal(1))
				Expect(doc.Result.Invoice.LineItems).To(HaveLen(2))
			})

			It("should keep the failed page image", func() {
				Expect(storage.files).To(HaveKey("doc-1_page_002.png"))
			})
		})

		When("every page fails to scan", func() {
			BeforeEach(func() {
				scanner.errs["page-1"] = errors.New("blurry")
				scanner.errs["page-2"] = errors.New("model unavailable")
			})

			It("should return an error naming each page", func() {
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("every page failed"))
				Expect(err.Error()).To(ContainSubstring("page 1: blurry"))
				Expect(err.Error()).To(ContainSubstring("page 2: model unavailable"))
				Expect(doc).To(BeNil())
			})

			It("should clean up stored pages", func() {
				Expect(storage.files).To(BeEmpty())
			})

			It("should not save a document", func() {
				Expect(db.documents).To(BeEmpty())
			})
		})

		When("no files are uploaded", func() {
			BeforeEach(func() {
				uploads = nil
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("at least one file is required")))
			})
		})

		When("an upload cannot be split", func() {
			BeforeEach(func() {
				splitter.splitErr = errors.New("unsupported image format")
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("splitting page one.png into pages")))
				Expect(storage.files).To(BeEmpty())
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("an upload has no pages", func() {
			BeforeEach(func() {
				uploads = uploads[:1]
				splitter.pages["page-1"] = [][]byte{}
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("no pages found")))
			})
		})

		When("storage fails", func() {
			BeforeEach(func() {
				storage.saveErr = errors.New("disk full")
			})

			It("should return an error", func() {
				Expect(err).To(MatchError(ContainSubstring("saving page 1")))
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.saveErr = errors.New("database error")
			})

			It("should return an error and clean up stored pages", func() {
				Expect(err).To(MatchError(ContainSubstring("saving document to database")))
				Expect(storage.files).To(BeEmpty())
			})
		})
	})

	Describe("ProcessDocument with a cancelled context", func() {
		It("should fail the whole document", func() {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			doc, err := service.ProcessDocument(ctx, []Upload{
				{Filename: "a.png", ContentType: "image/png", Data: []byte("page-1")},
			})
			Expect(err).To(MatchError(context.Canceled))
			Expect(doc).To(BeNil())
			Expect(storage.files).To(BeEmpty())
		})
	})

	Describe("Aggregate", func() {
		It("should reject an empty page list", func() {
			_, _, err := service.Aggregate(nil)
			Expect(err).To(MatchError(invoice.ErrNoPages))
		})

		It("should aggregate and validate the pages", func() {
			agg, validation, err := service.Aggregate([]invoice.PageResult{
				{PageNumber: 2, Data: *lastPageData()},
				{PageNumber: 1, Data: *firstPageData()},
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(agg.Metadata.PageTypes).To(Equal([]invoice.PageType{invoice.PageFirst, invoice.PageLast}))
			Expect(agg.Invoice.TotalAmount).To(Equal(180.0))
			Expect(validation.IsValid).To(BeTrue())
		})

		It("should not save anything", func() {
			_, _, err := service.Aggregate([]invoice.PageResult{{PageNumber: 1, Data: *firstPageData()}})
			Expect(err).NotTo(HaveOccurred())
			Expect(db.documents).To(BeEmpty())
		})
	})

	Describe("with a stored document", func() {
		var doc *Document

		BeforeEach(func() {
			var err error
			doc, err = service.ProcessDocument(context.Background(), []Upload{
				{Filename: "a.png", ContentType: "image/png", Data: []byte("page-1")},
				{Filename: "b.png", ContentType: "image/png", Data: []byte("page-2")},
			})
			Expect(err).NotTo(HaveOccurred())
		})

		Describe("GetDocument", func() {
			It("should return the document", func() {
				found, err := service.GetDocument("doc-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(Equal(doc))
			})

			It("should wrap the not found error", func() {
				_, err := service.GetDocument("missing")
				Expect(err).To(MatchError(ErrDocumentNotFound))
			})
		})

		Describe("ListDocuments", func() {
			It("should return every document", func() {
				docs, err := service.ListDocuments()
				Expect(err).NotTo(HaveOccurred())
				Expect(docs).To(HaveLen(1))
			})

			It("should return database errors", func() {
				db.listErr = errors.New("database error")
				_, err := service.ListDocuments()
				Expect(err).To(MatchError(ContainSubstring("listing documents")))
			})
		})

		Describe("UpdateInvoice", func() {
			var later time.Time

			BeforeEach(func() {
				later = now.Add(time.Hour)
				timeSrc.now = later
			})

			It("should replace the invoice and re-validate it", func() {
				corrected := *firstPageData()
				corrected.Supplier = ""
				corrected.TotalAmount = 120

				updated, err := service.UpdateInvoice("doc-1", corrected)
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Result.Invoice.TotalAmount).To(Equal(120.0))
				Expect(updated.Validation.IsValid).To(BeFalse())
				Expect(updated.Validation.Errors).To(ContainElement("Supplier name is missing"))
				Expect(updated.UpdatedAt).To(Equal(later))
				Expect(updated.CreatedAt).To(Equal(now))
			})

			It("should keep the aggregation metadata", func() {
				updated, err := service.UpdateInvoice("doc-1", *firstPageData())
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Result.Metadata.TotalPages).To(Equal(2))
			})

			It("should never store nil line items", func() {
				updated, err := service.UpdateInvoice("doc-1", invoice.InvoiceData{Supplier: "Acme Ltd"})
				Expect(err).NotTo(HaveOccurred())
				Expect(updated.Result.Invoice.LineItems).NotTo(BeNil())
				Expect(updated.Validation.Errors).To(ContainElement("No line items found"))
			})

			It("should return an error for a missing document", func() {
				_, err := service.UpdateInvoice("missing", *firstPageData())
				Expect(err).To(MatchError(ErrDocumentNotFound))
			})
		})

		Describe("GetPageImage", func() {
			It("should return the stored image", func() {
				data, err := service.GetPageImage("doc-1", 2)
				Expect(err).NotTo(HaveOccurred())
				Expect(data).To(Equal([]byte("page-2")))
			})

			It("should return ErrPageNotFound for an unknown page", func() {
				_, err := service.GetPageImage("doc-1", 3)
				Expect(err).To(MatchError(ErrPageNotFound))
			})
		})

		Describe("ExportDocument", func() {
			It("should return a workbook", func() {
				data, err := service.ExportDocument("doc-1")
				Expect(err).NotTo(HaveOccurred())
				Expect(data).NotTo(BeEmpty())
			})

			It("should return an error for a missing document", func() {
				_, err := service.ExportDocument("missing")
				Expect(err).To(MatchError(ErrDocumentNotFound))
			})
		})

		Describe("DeleteDocument", func() {
			It("should remove the document and its page images", func() {
				Expect(service.DeleteDocument("doc-1")).To(Succeed())
				Expect(db.documents).To(BeEmpty())
				Expect(storage.files).To(BeEmpty())
			})

			It("should delete the document even when an image cannot be removed", func() {
				storage.deleteErr = errors.New("permission denied")
				Expect(service.DeleteDocument("doc-1")).To(Succeed())
				Expect(db.documents).To(BeEmpty())
			})

			It("should return an error for a missing document", func() {
				Expect(service.DeleteDocument("missing")).To(MatchError(ErrDocumentNotFound))
			})
		})
	})
})

var _ = Describe("sanitizeFilename", func() {
	DescribeTable("cleans filenames",
		func(input, expected string) {
			Expect(sanitizeFilename(input)).To(Equal(expected))
		},
		Entry("keeps a clean name", "invoice.pdf", "invoice.pdf"),
		Entry("strips special characters", "inv#42(final).pdf", "inv42final.pdf"),
		Entry("collapses whitespace", "my    invoice.png", "my invoice.png"),
		Entry("falls back when nothing is left", "@@@.png", "invoice.png"),
	)
})
