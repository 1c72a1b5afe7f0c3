package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus/hooks/test"
)

const (
	testContract = "0xCd1a3b3FADffAcf76beA7B5C264515E91f996Cc1"
	testTxHash   = "0x00000000000000000000000000000000000000000000000000000000000abcde"
)

type fakeNode struct {
	mu       sync.Mutex
	accounts []string
	sent     []txArgs
	receipts int
	status   string
	rpcErr   map[string]any
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     json.RawMessage   `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if n.rpcErr != nil {
		resp["error"] = n.rpcErr
		_ = json.NewEncoder(w).Encode(resp)
		return
	}
	switch req.Method {
	case "eth_accounts":
		resp["result"] = n.accounts
	case "eth_sendTransaction":
		var tx txArgs
		_ = json.Unmarshal(req.Params[0], &tx)
		n.sent = append(n.sent, tx)
		resp["result"] = testTxHash
	case "eth_getTransactionReceipt":
		n.receipts++
		if n.receipts < 2 {
			resp["result"] = nil
		} else {
			resp["result"] = map[string]any{"transactionHash": testTxHash, "status": n.status, "blockNumber": "0x1"}
		}
	default:
		resp["error"] = map[string]any{"code": -32601, "message": "method not found"}
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func newTestClient(t *testing.T, node *fakeNode, confirm time.Duration) *Client {
	t.Helper()
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)
	log, _ := test.NewNullLogger()
	client, err := NewClient(context.Background(), Config{
		RPCURL:         srv.URL,
		From:           "0x00000000000000000000000000000000000000aa",
		Gas:            100000,
		ConfirmTimeout: confirm,
		PollInterval:   5 * time.Millisecond,
	}, log)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestPackSubmitQuiz(t *testing.T) {
	var commitment [32]byte
	for i := range commitment {
		commitment[i] = byte(i)
	}
	data, err := PackSubmitQuiz(commitment)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) != 36 {
		t.Fatalf("expected 36 bytes of calldata, got %d", len(data))
	}
	if !bytes.Equal(data[:4], parsedQuizABI.Methods[submitQuizMethod].ID) {
		t.Fatalf("selector mismatch: %x", data[:4])
	}
	if !bytes.Equal(data[4:], commitment[:]) {
		t.Fatalf("argument mismatch")
	}
}

func TestNewClientRejectsBadSender(t *testing.T) {
	log, _ := test.NewNullLogger()
	_, err := NewClient(context.Background(), Config{RPCURL: "http://127.0.0.1:8545", From: "0xaa"}, log)
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestSubmitCommitmentSendsTransaction(t *testing.T) {
	node := &fakeNode{}
	client := newTestClient(t, node, 0)

	var commitment [32]byte
	commitment[31] = 1
	txHash, err := client.SubmitCommitment(context.Background(), testContract, commitment)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if txHash != testTxHash {
		t.Fatalf("expected tx hash %s, got %s", testTxHash, txHash)
	}
	if len(node.sent) != 1 {
		t.Fatalf("expected one transaction, got %d", len(node.sent))
	}
	tx := node.sent[0]
	want, _ := PackSubmitQuiz(commitment)
	if tx.To != common.HexToAddress(testContract) || !bytes.Equal(tx.Data, want) {
		t.Fatalf("unexpected transaction %+v", tx)
	}
	if tx.Gas == nil || uint64(*tx.Gas) != 100000 {
		t.Fatalf("expected gas 100000, got %v", tx.Gas)
	}
	if tx.From != common.HexToAddress("0x00000000000000000000000000000000000000aa") {
		t.Fatalf("unexpected sender %s", tx.From.Hex())
	}
	if node.receipts != 0 {
		t.Fatalf("expected no receipt polling without confirm timeout")
	}
}

func TestSubmitCommitmentWaitsForReceipt(t *testing.T) {
	node := &fakeNode{status: "0x1"}
	client := newTestClient(t, node, time.Second)

	if _, err := client.SubmitCommitment(context.Background(), testContract, [32]byte{}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if node.receipts < 2 {
		t.Fatalf("expected receipt polling, got %d polls", node.receipts)
	}
}

func TestSubmitCommitmentReverted(t *testing.T) {
	node := &fakeNode{status: "0x0"}
	client := newTestClient(t, node, time.Second)

	_, err := client.SubmitCommitment(context.Background(), testContract, [32]byte{})
	if !errors.Is(err, ErrReverted) {
		t.Fatalf("expected ErrReverted, got %v", err)
	}
}

func TestSubmitCommitmentRPCError(t *testing.T) {
	node := &fakeNode{rpcErr: map[string]any{"code": 4001, "message": "user rejected"}}
	client := newTestClient(t, node, 0)

	_, err := client.SubmitCommitment(context.Background(), testContract, [32]byte{})
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) || rpcErr.ErrorCode() != 4001 {
		t.Fatalf("expected rpc error 4001, got %v", err)
	}
}

func TestSubmitCommitmentRejectsBadContract(t *testing.T) {
	node := &fakeNode{}
	client := newTestClient(t, node, 0)

	_, err := client.SubmitCommitment(context.Background(), "0xcontract", [32]byte{})
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
	if len(node.sent) != 0 {
		t.Fatalf("expected nothing sent for a bad contract")
	}
}

func TestAccountWallet(t *testing.T) {
	node := &fakeNode{accounts: []string{"0x00000000000000000000000000000000000000AA"}}
	client := newTestClient(t, node, 0)
	log, _ := test.NewNullLogger()

	if !NewAccountWallet(client, "0x00000000000000000000000000000000000000aa", log).Connected(context.Background()) {
		t.Fatalf("expected wallet connected")
	}
	if NewAccountWallet(client, "0x00000000000000000000000000000000000000bb", log).Connected(context.Background()) {
		t.Fatalf("expected unknown account to be disconnected")
	}
	if NewAccountWallet(client, "", log).Connected(context.Background()) {
		t.Fatalf("expected empty address to be disconnected")
	}
}

func TestStaticWallet(t *testing.T) {
	if !StaticWallet(true).Connected(context.Background()) || StaticWallet(false).Connected(context.Background()) {
		t.Fatalf("static wallet should report its value")
	}
}
