package config

import "os"

// Config holds server configuration.
type Config struct {
	Port            string
	LogLevel        string
	DatabaseURL     string
	IssuerID        string
	IssuerSecret    string
	OTLPEndpoint    string
	CORSOrigins     string
	RateLimitRPS    float64
	ProvenanceDir   string
	ProfilesDir     string
	ISPProfileDir   string
	KMSKeystorePath string
	ServerID        string
	PolicyRef       string
	EventLogDB      string
	Jurisdiction    string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("WINDI_DATABASE_URL")
	if dbURL == "" {
		dbURL = "windi.db"
	}

	issuerID := os.Getenv("WINDI_ISSUER_ID")
	if issuerID == "" {
		issuerID = "windi-guard"
	}

	otlpEndpoint := os.Getenv("WINDI_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	provenanceDir := os.Getenv("WINDI_PROVENANCE_DIR")
	if provenanceDir == "" {
		provenanceDir = "./data/provenance"
	}

	profilesDir := os.Getenv("WINDI_PROFILES_DIR")
	if profilesDir == "" {
		profilesDir = "./pkg/config/profiles"
	}

	ispProfileDir := os.Getenv("WINDI_ISP_PROFILE_DIR")
	if ispProfileDir == "" {
		ispProfileDir = "./data/isp_profiles"
	}

	kmsKeystorePath := os.Getenv("WINDI_KMS_KEYSTORE")
	if kmsKeystorePath == "" {
		kmsKeystorePath = "./data/kms/keystore.json"
	}

	serverID := os.Getenv("WINDI_SERVER_ID")
	if serverID == "" {
		serverID = "windi-server-1"
	}

	policyRef := os.Getenv("WINDI_POLICY_REF")
	if policyRef == "" {
		policyRef = "embedded"
	}

	eventLogDB := os.Getenv("WINDI_EVENT_LOG_DB")
	if eventLogDB == "" {
		eventLogDB = dbURL
	}

	jurisdiction := os.Getenv("WINDI_JURISDICTION")
	if jurisdiction == "" {
		jurisdiction = "us"
	}

	return &Config{
		Port:            port,
		LogLevel:        logLevel,
		DatabaseURL:     dbURL,
		IssuerID:        issuerID,
		IssuerSecret:    os.Getenv("WINDI_ISSUER_SECRET"),
		OTLPEndpoint:    otlpEndpoint,
		CORSOrigins:     os.Getenv("WINDI_CORS_ORIGINS"),
		RateLimitRPS:    50.0,
		ProvenanceDir:   provenanceDir,
		ProfilesDir:     profilesDir,
		ISPProfileDir:   ispProfileDir,
		KMSKeystorePath: kmsKeystorePath,
		ServerID:        serverID,
		PolicyRef:       policyRef,
		EventLogDB:      eventLogDB,
		Jurisdiction:    jurisdiction,
	}
}
