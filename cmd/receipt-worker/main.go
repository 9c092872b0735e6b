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

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/pennyledger/receipt-pipeline/internal/expense"
	"github.com/pennyledger/receipt-pipeline/internal/extraction"
	"github.com/pennyledger/receipt-pipeline/internal/secrets"
	"github.com/pennyledger/receipt-pipeline/internal/storage"
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

	// Local development convenience; in deployment secrets come from the
	// real environment
	_ = godotenv.Load()

	fs := ff.NewFlagSet("receipt-worker")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "receipt-pipeline.db", "Database file path")
		extractorType = fs.StringLong("extractor", "gemini", "Structured extractor: 'gemini' or 'ollama'")
		geminiModel   = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name")
		ocrURL        = fs.StringLong("ocr-url", "", "OCR service URL (default ocr.space)")
		forceOCR      = fs.BoolLong("force-ocr", "Always OCR first instead of sending images to the model")
		awsRegion     = fs.StringLong("aws-region", "us-east-1", "AWS region of the primary blob store")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_WORKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	secretStore := secrets.NewEnvStore()

	slog.Info("Initializing database...")
	store, err := expense.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	var extractor extraction.StructuredExtractor
	switch *extractorType {
	case "gemini":
		slog.Info("Initializing Gemini extractor...", "model", *geminiModel)
		extractor, err = extraction.NewGemini(secretStore, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", *ollamaURL, "model", *ollamaModel)
		extractor, err = extraction.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid extractor type", "type", *extractorType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer extractor.Close()

	if *forceOCR {
		extractor = extraction.TextOnly(extractor)
	}
	ocr := extraction.NewOCRWeb(*ocrURL, secretStore)

	slog.Info("Initializing blob signer...", "region", *awsRegion)
	blobSigner, err := storage.NewAwsS3(context.Background(), secretStore, *awsRegion)
	if err != nil {
		slog.Error("Failed to initialize S3 signer", "error", err)
		os.Exit(1)
	}
	resolver := expense.NewResolver(blobSigner, storage.NewArchive(secretStore))

	processor := expense.NewProcessor(store, resolver, ocr, extractor)

	basicAuth := expense.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := expense.NewServer(store, processor, basicAuth)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
