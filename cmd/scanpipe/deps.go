package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	appai "github.com/bryanwahyu/scanpipe/internal/application/ai"
	"github.com/bryanwahyu/scanpipe/internal/config"
	"github.com/bryanwahyu/scanpipe/internal/domain/pipeline"
	"github.com/bryanwahyu/scanpipe/internal/domain/runs"
	"github.com/bryanwahyu/scanpipe/internal/domain/scanerrors"
	"github.com/bryanwahyu/scanpipe/internal/infra/ai/openai"
	"github.com/bryanwahyu/scanpipe/internal/infra/db/memory"
	mysqlp "github.com/bryanwahyu/scanpipe/internal/infra/db/mysql"
	"github.com/bryanwahyu/scanpipe/internal/infra/db/postgres"
	"github.com/bryanwahyu/scanpipe/internal/infra/dockerclient"
	"github.com/bryanwahyu/scanpipe/internal/infra/storage"
)

// deps are the long-lived collaborators shared by every run of the process.
type deps struct {
	db     *sql.DB
	runs   runs.Repository
	errors scanerrors.Repository
	store  pipeline.ArtifactStore
	engine *dockerclient.Engine
	triage *appai.Service
}

func openDeps(ctx context.Context, cfg *config.Config) (*deps, error) {
	d := &deps{}
	if err := d.openDB(ctx, cfg); err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	d.store = store

	// docker client tidak langsung connect, error di sini jarang
	if engine, err := dockerclient.New(); err != nil {
		log.Printf("docker engine api unavailable, image pre-checks disabled: %v", err)
	} else {
		d.engine = engine
	}

	if cfg.AI.APIKey != "" {
		var client *openai.Client
		if cfg.AI.BaseURL != "" {
			client = openai.NewClientWithBaseURL(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.BaseURL)
		} else {
			client = openai.NewClient(cfg.AI.APIKey, cfg.AI.Model)
		}
		d.triage = appai.NewService(client)
	}
	return d, nil
}

func (d *deps) openDB(ctx context.Context, cfg *config.Config) error {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return fmt.Errorf("mysql connect error: %w", err)
		}
		if cfg.Database.Migrate {
			if err := mysqlp.Migrate(ctx, db); err != nil {
				db.Close()
				return err
			}
		}
		d.db = db
		d.runs = mysqlp.NewRunRepository(db)
		d.errors = mysqlp.NewStageErrorRepository(db)
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return fmt.Errorf("postgres connect error: %w", err)
		}
		if cfg.Database.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				db.Close()
				return err
			}
		}
		d.db = db
		d.runs = postgres.NewRunRepository(db)
		d.errors = postgres.NewStageErrorRepository(db)
	default:
		// tanpa database: history hanya di memory proses ini
		d.runs = memory.NewRunRepository()
		d.errors = memory.NewStageErrorRepository()
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config) (pipeline.ArtifactStore, error) {
	switch cfg.Artifacts.Store {
	case "local":
		s, err := storage.NewLocal(cfg.Artifacts.Dir)
		if err != nil {
			return nil, fmt.Errorf("local artifact store: %w", err)
		}
		return s, nil
	case "minio":
		s, err := storage.NewMinio(ctx,
			cfg.Minio.Endpoint,
			cfg.Minio.Region,
			cfg.Minio.BucketName,
			cfg.Minio.AccessKey,
			cfg.Minio.SecretKey,
			cfg.Minio.UseSSL,
		)
		if err != nil {
			return nil, fmt.Errorf("minio init error: %w", err)
		}
		return s, nil
	}
	return nil, nil
}

func (d *deps) Close() {
	if d.db != nil {
		d.db.Close()
	}
	if d.engine != nil {
		d.engine.Close()
	}
}
