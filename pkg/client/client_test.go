package client_test

import (
	"context"
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/memes/dhprime/pkg/client"
	"github.com/memes/dhprime/pkg/server"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufferSize = 1024 * 1024

func newConnection(t *testing.T, options ...server.PrimalityServerOption) *grpc.ClientConn {
	t.Helper()
	primalityServer, err := server.NewPrimalityServer(options...)
	if err != nil {
		t.Fatalf("Error calling NewPrimalityServer: %v", err)
	}
	listener := bufconn.Listen(bufferSize)
	grpcServer := primalityServer.NewGrpcServer()
	go func() {
		_ = grpcServer.Serve(listener)
	}()
	t.Cleanup(grpcServer.Stop)
	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("Error dialing buffered server: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})
	return conn
}

func TestIsPrime(t *testing.T) {
	t.Parallel()
	conn := newConnection(t, server.WithLabels(map[string]string{"zone": "test"}))
	primalityClient, err := client.NewPrimalityClient(client.WithMaxTimeout(5 * time.Second))
	if err != nil {
		t.Fatalf("Error calling NewPrimalityClient: %v", err)
	}
	tests := []struct {
		candidate int64
		expected  bool
	}{
		{candidate: -7, expected: false},
		{candidate: 1, expected: false},
		{candidate: 2, expected: true},
		{candidate: 91, expected: false},
		{candidate: 7919, expected: true},
		{candidate: 1105, expected: false},
	}
	for _, test := range tests {
		actual, metadata, err := primalityClient.IsPrime(context.Background(), conn, big.NewInt(test.candidate), 20)
		if err != nil {
			t.Errorf("%d: unexpected error %v", test.candidate, err)
			continue
		}
		if actual != test.expected {
			t.Errorf("%d: expected %t got %t", test.candidate, test.expected, actual)
		}
		if metadata["zone"] != "test" {
			t.Errorf("%d: expected zone label in metadata %v", test.candidate, metadata)
		}
	}
}

func TestJacobi(t *testing.T) {
	t.Parallel()
	conn := newConnection(t)
	primalityClient, err := client.NewPrimalityClient(client.WithPrefix(""))
	if err != nil {
		t.Fatalf("Error calling NewPrimalityClient: %v", err)
	}
	symbol, _, err := primalityClient.Jacobi(context.Background(), conn, big.NewInt(2), big.NewInt(3))
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if symbol != -1 {
		t.Errorf("(2/3): expected -1 got %d", symbol)
	}
	_, _, err = primalityClient.Jacobi(context.Background(), conn, big.NewInt(2), big.NewInt(4))
	if status.Code(err) != codes.InvalidArgument {
		t.Errorf("(2/4): expected InvalidArgument status, got %v", err)
	}
}

func TestIsPrime_Timeout(t *testing.T) {
	t.Parallel()
	conn := newConnection(t)
	primalityClient, err := client.NewPrimalityClient()
	if err != nil {
		t.Fatalf("Error calling NewPrimalityClient: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := primalityClient.IsPrime(ctx, conn, big.NewInt(7), 1); status.Code(err) != codes.Canceled {
		t.Errorf("Expected Canceled status, got %v", err)
	}
}
