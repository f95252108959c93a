package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port         = fs.IntLong("port", 8080, "HTTP server port")
		dbPath       = fs.StringLong("db", "receipt-scanner.db", "Database file path")
		storagePath  = fs.StringLong("storage", "./receipts", "Storage directory for uploaded originals")
		tempPath     = fs.StringLong("temp-storage", "./receipts/temp", "Staging directory for in-flight images")
		parserType   = fs.StringLong("parser", "mistral", "Parser backend: 'mistral' or 'gemini'")
		mistralKey   = fs.StringLong("mistral-key", "", "Mistral API key (or set MISTRAL_API_KEY env var)")
		mistralURL   = fs.StringLong("mistral-url", "https://api.mistral.ai", "Mistral API base URL")
		ocrModel     = fs.StringLong("ocr-model", "mistral-ocr-2505", "Mistral OCR model name")
		parseModel   = fs.StringLong("parse-model", "mistral-medium-2505", "Mistral chat model name")
		geminiKey    = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel  = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		maxUpload    = fs.IntLong("max-upload", 10<<20, "Maximum upload size in bytes")
		allowedTypes = fs.StringLong("allowed-types", "image/jpeg,image/png,image/webp", "Comma-separated list of allowed MIME types")
		corsOrigins  = fs.StringLong("cors-origins", "*", "Comma-separated list of allowed CORS origins")
		showVersion  = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Get Mistral API key from flag or environment
	apiKey := *mistralKey
	if apiKey == "" {
		apiKey = os.Getenv("MISTRAL_API_KEY")
	}
	if apiKey == "" {
		slog.Error("Mistral API key is required. Set --mistral-key flag or MISTRAL_API_KEY environment variable")
		os.Exit(1)
	}

	// Initialize OCR client
	slog.Info("Initializing OCR client...", "model", *ocrModel)
	extractor, err := scanning.NewMistralOCR(*mistralURL, apiKey, *ocrModel)
	if err != nil {
		slog.Error("Failed to initialize OCR client", "error", err)
		os.Exit(1)
	}

	// Initialize parser based on type
	var parser scanning.Parser
	switch *parserType {
	case "mistral":
		slog.Info("Initializing Mistral parser...", "model", *parseModel)
		parser, err = scanning.NewMistralParser(*mistralURL, apiKey, *parseModel)
		if err != nil {
			slog.Error("Failed to initialize Mistral parser", "error", err)
			os.Exit(1)
		}
	case "gemini":
		gKey := *geminiKey
		if gKey == "" {
			gKey = os.Getenv("GEMINI_API_KEY")
		}
		if gKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini parser...", "model", *geminiModel)
		parser, err = scanning.NewGeminiParser(gKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini parser", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid parser type", "type", *parserType, "valid", "mistral or gemini")
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize storage
	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	staging, err := receipt.NewLocalStorage(*tempPath)
	if err != nil {
		slog.Error("Failed to initialize staging storage", "error", err)
		os.Exit(1)
	}

	// Build the pipeline with the immutable limits configured at startup
	limits := scanning.Limits{
		MaxBytes:     int64(*maxUpload),
		AllowedTypes: strings.Split(*allowedTypes, ","),
	}
	pipeline := scanning.NewPipeline(extractor, parser, staging, limits)
	defer pipeline.Close()

	// Initialize service and server
	receiptService := receipt.NewService(db, pipeline, store)
	server := receipt.NewServer(receiptService, strings.Split(*corsOrigins, ","), int64(*maxUpload))

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
