package config

const (
	defaultAPIListen = ":8080"

	defaultVectorProvider = "sqlite"

	defaultEmbeddingProvider = "ollama"
	defaultEmbeddingTarget   = "http://localhost:11434"
	defaultEmbeddingModel    = "all-minilm"

	defaultDataMovies  = "movies.csv"
	defaultDataRatings = "ratings.csv"

	defaultTopK           = 10
	defaultIncludeSelf    = true
	defaultRebuildWorkers = 4
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Data: DataConfig{
			Movies:  defaultDataMovies,
			Ratings: defaultDataRatings,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		VectorStore: VectorStoreConfig{
			Provider: defaultVectorProvider,
		},
		Embedding: EmbeddingConfig{
			Provider: defaultEmbeddingProvider,
			Target:   defaultEmbeddingTarget,
			Model:    defaultEmbeddingModel,
		},
		Recommend: RecommendConfig{
			TopK:        defaultTopK,
			IncludeSelf: defaultIncludeSelf,
		},
		Rebuild: RebuildConfig{
			Workers: defaultRebuildWorkers,
		},
	}
}
