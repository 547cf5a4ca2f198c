package network

import (
	"context"
	"testing"
	"time"

	"github.com/vanguardchain/vanguard/ports"
	"github.com/vanguardchain/vanguard/types"
)

func TestHostSendDeliversFramedMessageToHandler(t *testing.T) {
	server := NewHost(nil)
	if err := server.Listen(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()
	addr := server.listener.Addr().String()

	received := make(chan []byte, 1)
	server.Handle(ProtocolStatus, func(peer ports.PeerID, msg []byte) {
		received <- msg
	})

	client := NewHost(nil)
	defer client.Close()
	client.Dial("server", addr)

	want := Status{Roles: 4, BestBlock: types.BlockInfo{Number: 7}, GenesisHash: types.Hash{9}}
	if err := client.Send(context.Background(), "server", ProtocolStatus, want.Encode()); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-received:
		decoded, err := DecodeStatus(got)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if decoded.Roles != want.Roles || decoded.GenesisHash != want.GenesisHash {
			t.Fatalf("roundtrip mismatch: got %+v, want %+v", decoded, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message delivery")
	}
}

func TestHostBroadcastReachesEveryDialedPeer(t *testing.T) {
	server := NewHost(nil)
	if err := server.Listen(context.Background(), "127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Close()
	addr := server.listener.Addr().String()

	count := 3
	received := make(chan struct{}, count)
	server.Handle(ProtocolTransactions, func(peer ports.PeerID, msg []byte) {
		received <- struct{}{}
	})

	client := NewHost(nil)
	defer client.Close()
	for i := 0; i < count; i++ {
		client.Dial(ports.PeerID(string(rune('a'+i))), addr)
	}

	if err := client.Broadcast(context.Background(), ProtocolTransactions, Transactions{}.Encode()); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	for i := 0; i < count; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("only received %d of %d broadcasts", i, count)
		}
	}
}

func TestHostSendWithoutDialFailsWithNoKnownAddress(t *testing.T) {
	client := NewHost(nil)
	defer client.Close()
	if err := client.Send(context.Background(), "ghost", ProtocolStatus, nil); err == nil {
		t.Fatal("expected error sending to an undialed peer")
	}
}

