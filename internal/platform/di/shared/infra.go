// internal/platform/di/shared/infra.go
package shared

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"cloud.google.com/go/firestore"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	dbadapter "storefront/internal/adapters/out/db"
	fsadapter "storefront/internal/adapters/out/firestore"
	gcsadapter "storefront/internal/adapters/out/gcs"
	"storefront/internal/adapters/out/local"
	"storefront/internal/adapters/out/memory"
	redisstore "storefront/internal/adapters/out/redis"
	"storefront/internal/application/identity"
	uc "storefront/internal/application/usecase"
	cartdom "storefront/internal/domain/cart"
	"storefront/internal/domain/document"
	favdom "storefront/internal/domain/favorite"
	productdom "storefront/internal/domain/product"
	appcfg "storefront/internal/infra/config"
	"storefront/internal/infra/database"
	firestoreinfra "storefront/internal/infra/firestore"
)

// Infra is shared runtime infrastructure for DI.
//   - owns external clients (Firestore/FirebaseAuth/GCS/SecretManager/Redis/Postgres/SQLite)
//   - resolves the document store variant (Live or Mock) once for the process lifetime
//   - resolves the product collaborator and the device key store
//
// Infra must NOT depend on routers or handlers.
type Infra struct {
	Config    *appcfg.Config
	ProjectID string

	// Clients (owned; Close-managed)
	Firestore     *firestore.Client
	GCS           *storage.Client
	FirebaseAuth  *firebaseauth.Client
	SecretManager *secretmanager.Client
	Redis         *redis.Client
	ProductDB     *database.DB
	DeviceDB      *local.DeviceKeyStore

	// Resolved once
	Backend    uc.Backend
	Products   productdom.Reader
	DeviceKeys identity.DeviceKeyStore
}

// NewInfra initializes shared infra.
// Nothing here is strict: a backend that cannot be configured degrades (document store to
// mock mode, products to the in-memory catalog, device keys to memory) and is logged.
func NewInfra(ctx context.Context) (*Infra, error) {
	cfg := appcfg.Load()
	if cfg == nil {
		return nil, errors.New("shared.infra: config is nil")
	}

	inf := &Infra{
		Config:    cfg,
		ProjectID: strings.TrimSpace(cfg.FirestoreProjectID),
	}

	clientOpts := inf.clientOptions(ctx)

	// 1) Document store (tagged union: Live or Mock)
	inf.Backend = inf.resolveBackend(ctx, clientOpts)

	// 2) Product collaborator
	inf.Products = inf.resolveProducts(ctx, clientOpts)

	// 3) Firebase Auth (best-effort; without it every request is anonymous)
	inf.initFirebaseAuth(ctx, clientOpts)

	// 4) Device key store
	if ks, err := local.OpenDeviceKeyStore(cfg.DeviceDBPath); err != nil {
		log.Printf("[shared.infra] WARN: device key store unavailable path=%s err=%v (keys kept in memory)", redactPath(cfg.DeviceDBPath), err)
		inf.DeviceKeys = identity.NewMemoryKeyStore()
	} else {
		inf.DeviceDB = ks
		inf.DeviceKeys = ks
		log.Printf("[shared.infra] device key store opened path=%s", redactPath(cfg.DeviceDBPath))
	}

	return inf, nil
}

// clientOptions resolves GCP credentials: a credentials file, a Secret Manager secret
// holding the JSON, or Application Default Credentials.
func (i *Infra) clientOptions(ctx context.Context) []option.ClientOption {
	cfg := i.Config
	var opts []option.ClientOption

	if f := strings.TrimSpace(cfg.FirestoreCredentialsFile); f != "" {
		opts = append(opts, option.WithCredentialsFile(f))
		log.Printf("[shared.infra] Using credentials file for GCP clients: %s", redactPath(f))
	} else {
		log.Printf("[shared.infra] Using Application Default Credentials (no credentials file configured)")
	}

	if cfg.FirestoreCredentialsSecret == "" {
		return opts
	}

	sm, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		log.Printf("[shared.infra] WARN: secretmanager.NewClient failed: %v (FIRESTORE_CREDENTIALS_SECRET ignored)", err)
		return opts
	}
	i.SecretManager = sm

	p := &credentialsSecretSM{sm: sm, projectID: i.ProjectID}
	b, err := p.Load(ctx, cfg.FirestoreCredentialsSecret)
	if err != nil {
		log.Printf("[shared.infra] WARN: %v (FIRESTORE_CREDENTIALS_SECRET ignored)", err)
		return opts
	}
	log.Printf("[shared.infra] Using credentials from Secret Manager secret=%s", cfg.FirestoreCredentialsSecret)
	return []option.ClientOption{option.WithCredentialsJSON(b)}
}

func (i *Infra) resolveBackend(ctx context.Context, opts []option.ClientOption) uc.Backend {
	cfg := i.Config

	mock := func(reason string) uc.Backend {
		log.Printf("[docstore] mode=%s backend=%s reason=%q", document.ModeMock, cfg.DocstoreBackend, reason)
		return uc.Backend{
			Mode:      document.ModeMock,
			Carts:     memory.NewMockStore[cartdom.Cart](nil),
			Favorites: memory.NewMockStore[favdom.Favorites](nil),
		}
	}
	live := func(b uc.Backend) uc.Backend {
		b.Mode = document.ModeLive
		log.Printf("[docstore] mode=%s backend=%s", document.ModeLive, cfg.DocstoreBackend)
		return b
	}

	switch cfg.DocstoreBackend {
	case appcfg.BackendFirestore:
		client, err := i.firestoreClient(ctx, opts)
		if err != nil {
			return mock(err.Error())
		}
		return live(uc.Backend{
			Carts:     fsadapter.NewCartStoreFS(client),
			Favorites: fsadapter.NewFavoritesStoreFS(client),
		})

	case appcfg.BackendRedis:
		if cfg.RedisAddr == "" {
			return mock("REDIS_ADDR is empty")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return mock(fmt.Sprintf("redis ping %s: %v", cfg.RedisAddr, err))
		}
		i.Redis = client
		return live(uc.Backend{
			Carts:     redisstore.NewDocumentStore[cartdom.Cart](client, "carts"),
			Favorites: redisstore.NewDocumentStore[favdom.Favorites](client, "favorites"),
		})

	case appcfg.BackendMemory:
		return live(uc.Backend{
			Carts:     memory.NewStore[cartdom.Cart](nil),
			Favorites: memory.NewStore[favdom.Favorites](nil),
		})

	default:
		return mock(fmt.Sprintf("unknown DOCSTORE_BACKEND %q", cfg.DocstoreBackend))
	}
}

func (i *Infra) resolveProducts(ctx context.Context, opts []option.ClientOption) productdom.Reader {
	cfg := i.Config

	fallback := func(reason string) productdom.Reader {
		log.Printf("[shared.infra] WARN: product source %s unavailable: %s (using in-memory catalog)", cfg.ProductSource, reason)
		return i.memoryCatalog()
	}

	switch cfg.ProductSource {
	case appcfg.ProductsFirestore:
		client, err := i.firestoreClient(ctx, opts)
		if err != nil {
			return fallback(err.Error())
		}
		log.Printf("[shared.infra] products source=firestore")
		return fsadapter.NewProductReaderFS(client)

	case appcfg.ProductsPostgres:
		conn, err := database.NewConnection(ctx, cfg.ProductDatabaseURL)
		if err != nil {
			return fallback(err.Error())
		}
		r := dbadapter.NewProductReaderPG(conn.Client)
		if err := r.Probe(ctx); err != nil {
			_ = conn.Close()
			return fallback(err.Error())
		}
		i.ProductDB = conn
		log.Printf("[shared.infra] products source=postgres")
		return r

	case appcfg.ProductsGCS:
		if cfg.ProductBucket == "" {
			return fallback("PRODUCT_BUCKET is empty")
		}
		client, err := storage.NewClient(ctx, opts...)
		if err != nil {
			return fallback(fmt.Sprintf("storage.NewClient: %v", err))
		}
		i.GCS = client
		log.Printf("[shared.infra] products source=gcs bucket=%s prefix=%s", cfg.ProductBucket, cfg.ProductPrefix)
		return gcsadapter.NewProductReaderGCS(client, cfg.ProductBucket, cfg.ProductPrefix)

	case appcfg.ProductsMemory:
		return i.memoryCatalog()

	default:
		return fallback(fmt.Sprintf("unknown PRODUCT_SOURCE %q", cfg.ProductSource))
	}
}

func (i *Infra) memoryCatalog() productdom.Reader {
	f := i.Config.ProductCatalogFile
	if f == "" {
		log.Printf("[shared.infra] products source=memory (empty catalog)")
		return memory.NewCatalog()
	}
	c, err := memory.LoadCatalogFile(f)
	if err != nil {
		log.Printf("[shared.infra] WARN: %v (empty catalog)", err)
		return memory.NewCatalog()
	}
	log.Printf("[shared.infra] products source=memory file=%s", redactPath(f))
	return c
}

// firestoreClient creates the shared Firestore client on first use.
func (i *Infra) firestoreClient(ctx context.Context, opts []option.ClientOption) (*firestore.Client, error) {
	if i.Firestore != nil {
		return i.Firestore, nil
	}
	if i.ProjectID == "" {
		return nil, errors.New("FIRESTORE_PROJECT_ID / GOOGLE_CLOUD_PROJECT is empty")
	}
	c, err := firestoreinfra.NewClient(ctx, i.ProjectID, opts...)
	if err != nil {
		return nil, err
	}
	i.Firestore = c
	return c, nil
}

func (i *Infra) initFirebaseAuth(ctx context.Context, opts []option.ClientOption) {
	projectID := strings.TrimSpace(i.Config.FirebaseProjectID)
	if projectID == "" {
		log.Printf("[shared.infra] Firebase Auth not configured (FIREBASE_PROJECT_ID empty); requests are anonymous")
		return
	}

	fbApp, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		log.Printf("[shared.infra] WARN: firebase app init failed: %v", err)
		return
	}
	authClient, err := fbApp.Auth(ctx)
	if err != nil {
		log.Printf("[shared.infra] WARN: firebase auth init failed: %v", err)
		return
	}
	i.FirebaseAuth = authClient
	log.Printf("[shared.infra] Firebase Auth initialized project=%s", projectID)
}

func (i *Infra) Close() error {
	if i == nil {
		return nil
	}
	if i.Firestore != nil {
		_ = i.Firestore.Close()
	}
	if i.GCS != nil {
		_ = i.GCS.Close()
	}
	if i.SecretManager != nil {
		_ = i.SecretManager.Close()
	}
	if i.Redis != nil {
		_ = i.Redis.Close()
	}
	if i.ProductDB != nil {
		_ = i.ProductDB.Close()
	}
	if i.DeviceDB != nil {
		_ = i.DeviceDB.Close()
	}
	return nil
}

func redactPath(p string) string {
	// Do not log full path (Windows/Unix compatible light masking)
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	// Keep only the last segment
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return "***"
	}
	return "***" + "/" + last
}
