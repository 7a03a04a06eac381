// Package composition reads environment configuration and builds the
// concrete adapter stack the rest of the service depends on,
// generalizing the teacher's hardcoded cmd/server wiring into a
// capability registry that picks a backend per adapter seam
// according to which environment variables are set.
package composition

import (
	"os"
	"strconv"
	"time"
)

// Config is every environment-tunable setting this service reads at
// startup.
type Config struct {
	ListenAddr string

	DatabaseURL string
	SQLiteDir   string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool
	LocalBlobDir   string

	QdrantURL        string
	QdrantHost       string
	QdrantPort       string
	QdrantAPIKey     string
	QdrantCollection string
	QdrantVectorSize int
	QdrantDistance   string
	LocalVectorPath  string

	OpenAIAPIKey   string
	EmbeddingModel string
	LocalEmbedDim  int

	OllamaURL string
	LLMModel  string

	JWTSecret string
	JWTExpiry time.Duration

	ChunkSize      int
	ChunkOverlap   int
	MaxUploadBytes int64
	RAGTopKDefault int
	RAGHistoryN    int

	IngestWorkers  int
	IngestQueueCap int
}

// Load reads Config from the process environment, filling in the
// same defaults the teacher's config loader used for ports and pool
// sizes.
func Load() Config {
	cfg := Config{
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLiteDir:   getEnv("SQLITE_DIR", "./local_storage"),

		MinioEndpoint:  os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET_RAW", "docuforge-raw"),
		MinioUseSSL:    getBool("MINIO_USE_SSL", false),
		LocalBlobDir:   getEnv("LOCAL_BLOB_DIR", "./local_storage/raw"),

		QdrantURL:        os.Getenv("QDRANT_URL"),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantPort:       getEnv("QDRANT_PORT", "6334"),
		QdrantAPIKey:     os.Getenv("QDRANT_API_KEY"),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "docuforge_chunks"),
		QdrantVectorSize: getInt("QDRANT_VECTOR_SIZE", 0),
		QdrantDistance:   getEnv("QDRANT_DISTANCE", "Cosine"),
		LocalVectorPath:  getEnv("LOCAL_VECTOR_PATH", "./local_storage/vectors/vectors.json"),

		OpenAIAPIKey:   os.Getenv("OPENAI_API_KEY"),
		EmbeddingModel: getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
		LocalEmbedDim:  getInt("LOCAL_EMBED_DIM", 256),

		OllamaURL: os.Getenv("OLLAMA_URL"),
		LLMModel:  getEnv("LLM_MODEL", "gpt-4o-mini"),

		JWTSecret: os.Getenv("JWT_SECRET"),
		JWTExpiry: time.Duration(getInt("JWT_EXPIRY_MINUTES", 60)) * time.Minute,

		ChunkSize:      getInt("CHUNK_SIZE", 1000),
		ChunkOverlap:   getInt("CHUNK_OVERLAP", 150),
		MaxUploadBytes: int64(getInt("MAX_UPLOAD_BYTES", 64<<20)),
		RAGTopKDefault: getInt("RAG_TOP_K_DEFAULT", 3),
		RAGHistoryN:    getInt("RAG_HISTORY_N", 4),

		IngestWorkers:  getInt("INGEST_WORKERS", 4),
		IngestQueueCap: getInt("INGEST_QUEUE_CAPACITY", 256),
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
