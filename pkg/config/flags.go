package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single definition of a CLI flag. Commands refer to flags by
// registry key so the same logical flag keeps one name, shorthand and
// description everywhere it appears.
type Flag struct {
	// Name is the long flag name (e.g. "listen").
	Name string

	// Shorthand is the one-letter short flag. Empty for none.
	Shorthand string

	// ViperKey is the dotted config key the flag maps to.
	ViperKey string

	// Description is the --help text.
	Description string
}

// FlagSet maps registry keys to flag definitions.
type FlagSet map[string]Flag

// Flag registry keys.
const (
	FlagAPIListen      = "api-listen"
	FlagAPITarget      = "api-target"
	FlagStorageDriver  = "storage-driver"
	FlagSQLite         = "sqlite"
	FlagPostgresDSN    = "postgres-dsn"
	FlagMemoryBackend  = "memory-backend"
	FlagMemoryTarget   = "memory-target"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagLadder         = "ladder"
	FlagKafkaBrokers   = "kafka-brokers"
	FlagTriggers       = "triggers"
)

// ServeFlags are shared by `mali serve` and the in-process `mali chat`.
var ServeFlags = FlagSet{
	FlagAPIListen:      {Name: "listen", Shorthand: "l", ViperKey: "api.listen", Description: "Address for the API server to listen on"},
	FlagStorageDriver:  {Name: "storage", ViperKey: "storage.driver", Description: "Transcript storage driver (inmemory, sqlite, postgres)"},
	FlagSQLite:         {Name: "sqlite", Shorthand: "s", ViperKey: "storage.sqlite_path", Description: "Path to the SQLite transcript database"},
	FlagPostgresDSN:    {Name: "postgres", ViperKey: "storage.postgres_dsn", Description: "PostgreSQL connection string"},
	FlagMemoryBackend:  {Name: "memory-backend", ViperKey: "memory.backend", Description: "Memory segment backend (chromem, sqlitevec, qdrant, chroma)"},
	FlagMemoryTarget:   {Name: "memory-target", ViperKey: "memory.target", Description: "Qdrant host:port or Chroma URL for remote segment backends"},
	FlagEmbeddingProv:  {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (ollama, gemini)"},
	FlagEmbeddingTgt:   {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel: {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:  {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding vector dimensions"},
	FlagLadder:         {Name: "ladder", ViperKey: "generation.ladder", Description: "Comma separated provider ladder, strongest first"},
	FlagKafkaBrokers:   {Name: "kafka-brokers", ViperKey: "events.brokers", Description: "Comma separated Kafka brokers for turn events"},
	FlagTriggers:       {Name: "triggers", ViperKey: "intent.triggers_path", Description: "YAML file overriding the intent trigger tables"},
}

// ClientFlags are used by commands that talk to a running server.
var ClientFlags = FlagSet{
	FlagAPITarget: {Name: "api", Shorthand: "a", ViperKey: "client.api_target", Description: "mali API server URL"},
}

// AddStringFlag registers a string flag on cmd from fs.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from fs.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, key string, target *uint) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags connects already-registered flags to viper. Call it in
// PreRunE after InitViper so flags win over env, file and defaults.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, keys []string) {
	for _, key := range keys {
		def, ok := fs[key]
		if !ok {
			continue
		}
		if f := cmd.Flags().Lookup(def.Name); f != nil {
			_ = v.BindPFlag(def.ViperKey, f)
		}
	}
}

// Keys returns the registry keys of fs, for BindRegisteredFlags.
func (fs FlagSet) Keys() []string {
	keys := make([]string, 0, len(fs))
	for k := range fs {
		keys = append(keys, k)
	}
	return keys
}

func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
