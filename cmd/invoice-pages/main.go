package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/invoice-pages/internal/document"
	"github.com/zombor/invoice-pages/internal/invoice"
	"github.com/zombor/invoice-pages/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("invoice-pages")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "invoice-pages.db", "Database file path")
		storageBackend = fs.StringLong("storage-backend", "local", "Page image storage: 'local' or 's3'")
		storagePath    = fs.StringLong("storage", "./pages", "Local storage directory path")
		s3Bucket       = fs.StringLong("s3-bucket", "", "S3 bucket for page images")
		s3Region       = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Prefix       = fs.StringLong("s3-prefix", "pages", "S3 key prefix")
		s3Endpoint     = fs.StringLong("s3-endpoint", "", "S3 compatible endpoint URL (optional)")
		s3AccessKey    = fs.StringLong("s3-access-key", "", "S3 access key ID (optional, defaults to the AWS credential chain)")
		s3SecretKey    = fs.StringLong("s3-secret-key", "", "S3 secret access key (optional)")
		scannerType    = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'openai'")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		openaiKey      = fs.StringLong("openai-key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
		openaiModel    = fs.StringLong("openai-model", "gpt-4o", "OpenAI model name")
		openaiURL      = fs.StringLong("openai-url", "", "OpenAI compatible API base URL (optional)")
		concurrency    = fs.IntLong("concurrency", document.DefaultConcurrency, "Pages scanned in parallel")
		vatRate        = fs.Float64Long("fallback-vat-rate", invoice.DefaultVATRate, "VAT rate used to estimate tax when the last page has no totals")
		enhance        = fs.BoolLong("enhance", "Convert pages to high contrast grayscale before scanning")
		authUser       = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass       = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("INVOICE_PAGES"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *vatRate < 0 || *vatRate >= 1 {
		slog.Error("Fallback VAT rate must be a fraction between 0 and 1", "rate", *vatRate)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := document.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	case "openai":
		apiKey := *openaiKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		slog.Info("Initializing OpenAI scanner...", "model", *openaiModel)
		scanner, err = scanning.NewOpenAI(apiKey, *openaiModel, *openaiURL)
		if err != nil {
			slog.Error("Failed to initialize OpenAI", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama or openai")
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize storage
	var store document.Storage
	switch *storageBackend {
	case "local":
		slog.Info("Initializing local storage...", "path", *storagePath)
		store, err = document.NewLocalStorage(*storagePath)
	case "s3":
		slog.Info("Initializing S3 storage...", "bucket", *s3Bucket, "region", *s3Region)
		store, err = document.NewS3Storage(context.Background(), document.S3Config{
			Region:          *s3Region,
			Bucket:          *s3Bucket,
			Prefix:          *s3Prefix,
			Endpoint:        *s3Endpoint,
			AccessKeyID:     *s3AccessKey,
			SecretAccessKey: *s3SecretKey,
		})
	default:
		slog.Error("Invalid storage backend", "backend", *storageBackend, "valid", "local or s3")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Initialize service
	aggregator := invoice.NewAggregatorWithDeps(invoice.DefaultClassifier, *vatRate)
	documentService := document.NewService(db, scanner, store, scanning.NewPageSplitter(*enhance), aggregator, *concurrency)

	// Initialize server
	basicAuth := document.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := document.NewServer(documentService, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"scanner", *scannerType,
		"storage", *storageBackend,
		"concurrency", *concurrency,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
