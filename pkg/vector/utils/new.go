package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/reelpick/reel/pkg/vector"
	"github.com/reelpick/reel/pkg/vector/chroma"
	"github.com/reelpick/reel/pkg/vector/qdrantvec"
	"github.com/reelpick/reel/pkg/vector/sqlitevec"
)

type NewVectorStoreOpts struct {
	ProviderType string
	Path         string
	TargetURL    string
	Host         string
	Port         int
	Logger       *zap.Logger
}

func NewVectorStore(o *NewVectorStoreOpts) (vector.Store, error) {
	switch o.ProviderType {
	case "sqlite", "":
		return sqlitevec.NewStore(sqlitevec.Config{
			DBPath: o.Path,
		}, o.Logger)
	case "chroma":
		return chroma.NewStore(chroma.Config{
			URL: o.TargetURL,
		}, o.Logger)
	case "qdrant":
		return qdrantvec.NewStore(qdrantvec.Config{
			Host: o.Host,
			Port: o.Port,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
