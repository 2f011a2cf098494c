package dynamo

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/ory/dockertest"
	"github.com/stretchr/testify/require"

	"finbot/internal/ledger"
	"finbot/internal/ledger/ledgertest"
)

var tableCounter atomic.Int64

func newIntegrationClient(t *testing.T) *dynamodb.Client {
	t.Helper()
	if testing.Short() || os.Getenv("DOCKERTEST") != "1" {
		t.Skip("skipping integration test; set DOCKERTEST=1 to run")
	}

	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("could not connect to docker: %v", err)
	}
	resource, err := pool.Run("public.ecr.aws/aws-dynamodb-local/aws-dynamodb-local", "1.19.0", []string{})
	if err != nil {
		t.Fatalf("could not start resource: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Purge(resource); err != nil {
			t.Fatalf("could not purge resource: %v", err)
		}
	})

	client, err := NewClient(context.Background(), "us-east-1",
		"http://localhost:"+resource.GetPort("8000/tcp"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("local", "local", "")))
	if err != nil {
		t.Fatalf("could not load config: %v", err)
	}

	pool.MaxWait = 60 * time.Second
	if err := pool.Retry(func() error {
		_, err := client.ListTables(context.Background(), &dynamodb.ListTablesInput{})
		return err
	}); err != nil {
		t.Fatalf("could not connect to dynamo container: %v", err)
	}
	return client
}

func TestRepository_Integration(t *testing.T) {
	client := newIntegrationClient(t)

	ledgertest.Run(t, ledgertest.Factory{
		New: func(t *testing.T) ledger.Backend {
			repo := NewRepository(
				WithClient(client),
				WithTableName(fmt.Sprintf("ledger-%d", tableCounter.Add(1))),
				WithLocation(time.UTC),
			)
			require.NoError(t, repo.EnsureTable(context.Background()))
			require.NoError(t, repo.Ping(context.Background()))
			return repo
		},
	})
}

func TestDecodeItem(t *testing.T) {
	repo := NewRepository(WithLocation(time.UTC))
	tx, err := repo.decode(item{
		UserID: "u", Seq: 3, ID: "t3", Type: "lend", Amount: "40.50",
		Counterparty: "Bob", Date: "2025-04-01T09:30:00Z",
	})
	require.NoError(t, err)
	require.Equal(t, "t3", tx.ID)
	require.Equal(t, int64(3), tx.Seq)
	require.Equal(t, "40.5", tx.Amount.String())
	require.Equal(t, time.Date(2025, 4, 1, 9, 30, 0, 0, time.UTC), tx.Timestamp)
	require.False(t, tx.Settled)

	_, err = repo.decode(item{UserID: "u", Seq: 1, Amount: "x", Date: "2025-04-01T09:30:00Z"})
	require.Error(t, err)
}
