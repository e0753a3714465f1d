package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	bookDomain "github.com/davicafu/hexabooks/internal/book/domain"
	"github.com/davicafu/hexabooks/internal/book/infra/outbound/filesystem"
	"github.com/davicafu/hexabooks/internal/config"
)

// runSeed carga el fichero y da de alta cada libro. Los eventos quedan en el outbox
// y los publica el relayer del siguiente 'serve'.
func runSeed(ctx context.Context, cfg *config.Config, log *zap.Logger, file string) error {
	seeds, err := filesystem.NewJSONBookStorage(file).Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to read seed file %s: %w", file, err)
	}

	store, err := openStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close(context.Background())

	inputs := make([]bookDomain.BookInput, 0, len(seeds))
	for _, s := range seeds {
		inputs = append(inputs, s.Input())
	}

	res, err := newBookService(cfg, store, nil, log).ImportBooks(ctx, inputs)
	if err != nil {
		return fmt.Errorf("seed aborted after %d books: %w", res.Created, err)
	}
	fmt.Printf("seeded %d books from %s (%d skipped)\n", res.Created, file, res.Skipped)
	return nil
}
