// Package mongo wraps the MongoDB driver with a shared, ref-counted client.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Laisky/disaster-alert/library/log"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultTimeout      = 30 * time.Second
	healthCheckInterval = 10 * time.Second
	healthCheckTimeout  = 5 * time.Second
)

// DB is the handle DAOs depend on.
type DB interface {
	Close(ctx context.Context) error
	GetCol(colName string) *mongo.Collection
	DB(name string) *mongo.Database
	CurrentDB() *mongo.Database
}

// DialInfo describes how to reach one database.
type DialInfo struct {
	Addr,
	DBName,
	User,
	Pwd string
	AuthDB string
}

type db struct {
	shared   *sharedClient
	dialInfo DialInfo
}

// sharedClient is reused by every DB pointing at the same server and credentials.
type sharedClient struct {
	mu       sync.RWMutex
	cli      *mongo.Client
	key      string
	addr     string
	refCount int
	ready    chan struct{}
	err      error
	stop     context.CancelFunc
}

var (
	sharedClientsMu sync.Mutex
	sharedClients   = map[string]*sharedClient{}
)

// swapped in tests
var (
	connectMongo = func(ctx context.Context, opts *options.ClientOptions) (*mongo.Client, error) {
		return mongo.Connect(ctx, opts)
	}
	pingMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Ping(ctx, readpref.Primary())
	}
	disconnectMongo = func(ctx context.Context, cli *mongo.Client) error {
		return cli.Disconnect(ctx)
	}
)

func buildMongoURI(dialInfo DialInfo) string {
	uri := &url.URL{
		Scheme: "mongodb",
		Host:   dialInfo.Addr,
		Path:   "/" + dialInfo.DBName,
	}
	if dialInfo.User != "" || dialInfo.Pwd != "" {
		uri.User = url.UserPassword(dialInfo.User, dialInfo.Pwd)
	}
	if dialInfo.AuthDB != "" {
		query := url.Values{}
		query.Set("authSource", dialInfo.AuthDB)
		uri.RawQuery = query.Encode()
	}

	return uri.String()
}

// sharedClientKey ignores the database name, so databases on one
// server share a connection pool.
func sharedClientKey(dialInfo DialInfo) string {
	return fmt.Sprintf("%s|%s|%s|%s", dialInfo.Addr, dialInfo.User, dialInfo.Pwd, dialInfo.AuthDB)
}

// NewDB returns a DB backed by a shared client, dialing only when no
// client exists for the same server and credentials.
func NewDB(ctx context.Context, dialInfo DialInfo) (DB, error) {
	log.Logger.Info("connect to mongodb",
		zap.String("addr", dialInfo.Addr),
		zap.String("db", dialInfo.DBName),
	)

	shared, err := acquireSharedClient(ctx, dialInfo)
	if err != nil {
		return nil, errors.Wrap(err, "connect")
	}

	return &db{shared: shared, dialInfo: dialInfo}, nil
}

func acquireSharedClient(ctx context.Context, dialInfo DialInfo) (*sharedClient, error) {
	key := sharedClientKey(dialInfo)

	sharedClientsMu.Lock()
	if sc := sharedClients[key]; sc != nil {
		sc.refCount++
		sharedClientsMu.Unlock()

		select {
		case <-sc.ready:
		case <-ctx.Done():
			sc.release()
			return nil, errors.Wrap(ctx.Err(), "wait for mongo connect")
		}
		if sc.err != nil {
			sc.release()
			return nil, errors.Wrap(sc.err, "shared dial")
		}

		return sc, nil
	}

	sc := &sharedClient{
		key:      key,
		addr:     dialInfo.Addr,
		refCount: 1,
		ready:    make(chan struct{}),
	}
	sharedClients[key] = sc
	sharedClientsMu.Unlock()

	sc.err = sc.dial(ctx, buildMongoURI(dialInfo))
	close(sc.ready)
	if sc.err != nil {
		sharedClientsMu.Lock()
		if sharedClients[key] == sc {
			delete(sharedClients, key)
		}
		sharedClientsMu.Unlock()
		return nil, sc.err
	}

	sc.watch()
	return sc, nil
}

// release drops one reference and forgets the client when it never connected.
func (s *sharedClient) release() {
	sharedClientsMu.Lock()
	defer sharedClientsMu.Unlock()

	s.refCount--
	if s.refCount == 0 && s.client() == nil && sharedClients[s.key] == s {
		delete(sharedClients, s.key)
	}
}

func (s *sharedClient) dial(ctx context.Context, uri string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(defaultTimeout).
		SetServerSelectionTimeout(defaultTimeout).
		SetSocketTimeout(defaultTimeout).
		SetRetryReads(true).
		SetRetryWrites(true).
		SetMaxPoolSize(100).
		SetMaxConnIdleTime(5 * time.Minute)

	cli, err := connectMongo(ctx, opts)
	if err != nil {
		return errors.Wrap(err, "connect db")
	}

	// fail at startup rather than on the first request
	if err := pingMongo(ctx, cli); err != nil {
		_ = disconnectMongo(context.Background(), cli)
		return errors.Wrap(err, "ping db")
	}

	s.mu.Lock()
	s.cli = cli
	s.mu.Unlock()

	return nil
}

// watch logs when the server stops answering pings.
// Reconnection is left to the driver.
func (s *sharedClient) watch() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel

	go func() {
		ticker := time.NewTicker(healthCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			cli := s.client()
			if cli == nil {
				continue
			}

			pingCtx, pingCancel := context.WithTimeout(ctx, healthCheckTimeout)
			err := pingMongo(pingCtx, cli)
			pingCancel()
			if err != nil && ctx.Err() == nil {
				log.Logger.Warn("mongodb ping failed",
					zap.Error(err),
					zap.String("addr", s.addr))
			}
		}
	}()
}

func (s *sharedClient) client() *mongo.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cli
}

// DB returns a database handle on the shared client.
func (d *db) DB(name string) *mongo.Database {
	return d.shared.client().Database(name)
}

// CurrentDB returns the database named in DialInfo.
func (d *db) CurrentDB() *mongo.Database {
	return d.DB(d.dialInfo.DBName)
}

// GetCol returns a collection of the current database.
func (d *db) GetCol(colName string) *mongo.Collection {
	return d.CurrentDB().Collection(colName)
}

// Close releases this handle; the last one disconnects the client.
func (d *db) Close(ctx context.Context) error {
	if d.shared == nil {
		return nil
	}

	sharedClientsMu.Lock()
	d.shared.refCount--
	remaining := d.shared.refCount
	if remaining == 0 && sharedClients[d.shared.key] == d.shared {
		delete(sharedClients, d.shared.key)
	}
	sharedClientsMu.Unlock()

	if remaining > 0 {
		return nil
	}

	if d.shared.stop != nil {
		d.shared.stop()
	}

	cli := d.shared.client()
	if cli == nil {
		return nil
	}

	if ctx == nil {
		ctx = context.Background()
	}
	closeCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err := disconnectMongo(closeCtx, cli)
	d.shared.mu.Lock()
	d.shared.cli = nil
	d.shared.mu.Unlock()
	if err != nil {
		return errors.Wrap(err, "disconnect")
	}

	return nil
}
