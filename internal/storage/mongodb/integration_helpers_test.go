package mongodb

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

// openMongoStoreForIntegrationTest подключается к STOREFRONT_MONGO_TEST_URI
// и создаёт отдельную базу на каждый тест.
func openMongoStoreForIntegrationTest(t *testing.T) *Store {
	t.Helper()

	uri := strings.TrimSpace(os.Getenv("STOREFRONT_MONGO_TEST_URI"))
	if uri == "" {
		t.Skip("STOREFRONT_MONGO_TEST_URI is not set")
	}

	database := fmt.Sprintf("storefront_test_%s", strings.ReplaceAll(uuid.NewString()[:8], "-", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := Open(ctx, uri, database)
	if err != nil {
		t.Skipf("mongo is unavailable: %v", err)
	}
	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		_ = store.Database().Drop(cleanupCtx)
		_ = store.Close(cleanupCtx)
	})

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("ensure indexes: %v", err)
	}
	return store
}
