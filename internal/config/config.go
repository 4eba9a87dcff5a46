package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string
	Timezone  string

	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	GeminiTimeoutMs    int
	GeminiMaxAttempts  int
	GeminiRetryDelayMs int
	GeminiRateLimitRPS int
	GeminiMaxTokens    int
	GeminiTemperature  float64
	GeminiTopP         float64
	GeminiTopK         int

	// PageRanges is the pass partition, e.g. "1-3,4-5,6-7". A single pass over
	// a long document truncates before the last pages, so the partition is a
	// hard requirement, not an optimization.
	PageRanges         string
	ExtractConcurrency int
	PassDelayMs        int
	DedupEnabled       bool

	SearchQueries      []string
	SubjectKeywords    []string
	AttachmentKeywords []string
	SearchWindowMin    int
	SearchMax          int

	CheckTimes        []string
	CheckToleranceMin int
	SkipSunday        bool

	RetryDelayMin    int
	MaxRetryAttempts int

	SheetBackend     string // "google" or "xlsx"
	SheetID          string
	SummarySheetName string
	StockSheetName   string
	XLSXPath         string

	NotifyBackend string // "gmail" or "log"
	NotifyAddress string

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string

	MailProvider string
	MailLabel    string
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		Timezone:  getEnv("TIMEZONE", "Asia/Hong_Kong"),

		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTimeoutMs:    getEnvInt("GEMINI_TIMEOUT_MS", 180000),
		GeminiMaxAttempts:  getEnvInt("GEMINI_MAX_ATTEMPTS", 3),
		GeminiRetryDelayMs: getEnvInt("GEMINI_RETRY_DELAY_MS", 60000),
		GeminiRateLimitRPS: getEnvInt("GEMINI_RATE_LIMIT_RPS", 1),
		GeminiMaxTokens:    getEnvInt("GEMINI_MAX_OUTPUT_TOKENS", 65536),
		GeminiTemperature:  getEnvFloat("GEMINI_TEMPERATURE", 0.0),
		GeminiTopP:         getEnvFloat("GEMINI_TOP_P", 0.9),
		GeminiTopK:         getEnvInt("GEMINI_TOP_K", 50),

		PageRanges:         getEnv("PAGE_RANGES", "1-3,4-5,6-7"),
		ExtractConcurrency: getEnvInt("EXTRACT_CONCURRENCY", 1),
		PassDelayMs:        getEnvInt("PASS_DELAY_MS", 2000),
		DedupEnabled:       getEnvBool("DEDUP_ENABLED", true),

		SearchQueries: getEnvList("SEARCH_QUERIES", []string{
			"subject:inventory has:attachment filename:inventory.pdf",
			"subject:inventory has:attachment",
			"subject:stock has:attachment",
			"subject:在庫 has:attachment",
			"subject:データ has:attachment",
		}),
		SubjectKeywords:    getEnvList("SUBJECT_KEYWORDS", []string{"inventory", "stock", "在庫", "データ"}),
		AttachmentKeywords: getEnvList("ATTACHMENT_KEYWORDS", []string{"inventory", "stock", "pdf"}),
		SearchWindowMin:    getEnvInt("SEARCH_WINDOW_MIN", 60),
		SearchMax:          getEnvInt("SEARCH_MAX", 50),

		CheckTimes:        getEnvList("CHECK_TIMES", []string{"08:05", "13:05", "18:17"}),
		CheckToleranceMin: getEnvInt("CHECK_TOLERANCE_MIN", 120),
		SkipSunday:        getEnvBool("SKIP_SUNDAY", true),

		RetryDelayMin:    getEnvInt("RETRY_DELAY_MIN", 3),
		MaxRetryAttempts: getEnvInt("MAX_RETRY_ATTEMPTS", 2),

		SheetBackend:     getEnv("SHEET_BACKEND", "google"),
		SheetID:          getEnv("SHEET_ID", ""),
		SummarySheetName: getEnv("SUMMARY_SHEET_NAME", "InventorySummaryReport"),
		StockSheetName:   getEnv("STOCK_SHEET_NAME", "Stock"),
		XLSXPath:         getEnv("XLSX_PATH", filepath.Join(cwd, "out", "inventory.xlsx")),

		NotifyBackend: getEnv("NOTIFY_BACKEND", "gmail"),
		NotifyAddress: getEnv("NOTIFY_ADDRESS", ""),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),

		MailProvider: getEnv("MAIL_PROVIDER", "gmail"),
		MailLabel:    getEnv("MAIL_LABEL", "INBOX"),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	parts := strings.Split(value, ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
