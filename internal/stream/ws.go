package stream

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pumpfun-scanner/internal/logging"
)

const wsReadTimeout = 2 * time.Minute

// wsEnvelope is the provider's websocket message framing. Account data and
// instruction data arrive base64-encoded.
type wsEnvelope struct {
	Type        string   `json:"type"`
	Pubkey      string   `json:"pubkey,omitempty"`
	Owner       string   `json:"owner,omitempty"`
	Data        string   `json:"data,omitempty"`
	Slot        uint64   `json:"slot"`
	Signature   string   `json:"signature,omitempty"`
	Fee         uint64   `json:"fee,omitempty"`
	Logs        []string `json:"logs,omitempty"`
	Accounts    []string `json:"accounts,omitempty"`
	UserAddress string   `json:"user,omitempty"`
	TokenMint   string   `json:"mint,omitempty"`
	TokenAmount float64  `json:"token_amount,omitempty"`
	SolAmount   float64  `json:"sol_amount,omitempty"`
}

// WSFirehose bridges a websocket firehose provider onto the Firehose
// contract. One Subscribe call owns one connection; the client's redial
// loop calls Subscribe again after a drop.
type WSFirehose struct {
	endpoint string
	token    string

	mu   sync.Mutex
	conn *websocket.Conn

	logger *logging.Logger
}

// NewWSFirehose creates a provider bridge for a websocket endpoint.
func NewWSFirehose(endpoint, token string) *WSFirehose {
	return &WSFirehose{
		endpoint: endpoint,
		token:    token,
		logger:   logging.WithComponent("firehose"),
	}
}

// Subscribe dials the provider, sends the filter payload, and pumps decoded
// updates until the connection drops. The returned channel closes on any
// read error.
func (f *WSFirehose) Subscribe(ctx context.Context, req SubscribeRequest) (<-chan Update, error) {
	header := map[string][]string{}
	if f.token != "" {
		header["Authorization"] = []string{"Bearer " + f.token}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.endpoint, header)
	if err != nil {
		return nil, err
	}

	sub := map[string]interface{}{
		"method":     "subscribe",
		"commitment": req.Commitment,
		"accounts": map[string]interface{}{
			"owner": req.Accounts.Owner,
			"filters": []map[string]interface{}{
				{"memcmp": map[string]interface{}{
					"offset": req.Accounts.FlagOffset,
					"bytes":  []byte{req.Accounts.FlagValue},
				}},
			},
		},
		"transactions": map[string]interface{}{
			"account_include": req.Transactions.AccountInclude,
			"vote":            !req.Transactions.ExcludeVotes,
			"failed":          !req.Transactions.ExcludeFailed,
		},
	}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, err
	}

	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()

	ch := make(chan Update, 256)
	go f.pump(conn, ch)
	return ch, nil
}

// Close tears down the active connection, unblocking any pump.
func (f *WSFirehose) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn != nil {
		err := f.conn.Close()
		f.conn = nil
		return err
	}
	return nil
}

func (f *WSFirehose) pump(conn *websocket.Conn, ch chan<- Update) {
	defer close(ch)
	defer conn.Close()
	for {
		conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			f.logger.Warn("Firehose read failed", "error", err)
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}
		if u, ok := decodeEnvelope(&env); ok {
			ch <- u
		}
	}
}

func decodeEnvelope(env *wsEnvelope) (Update, bool) {
	switch env.Type {
	case "account":
		data, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			return Update{}, false
		}
		return Update{Account: &AccountUpdate{
			Pubkey: env.Pubkey,
			Owner:  env.Owner,
			Data:   data,
			Slot:   env.Slot,
		}}, true
	case "transaction":
		data, err := base64.StdEncoding.DecodeString(env.Data)
		if err != nil {
			data = nil
		}
		return Update{Transaction: &TransactionUpdate{
			Signature:   env.Signature,
			Slot:        env.Slot,
			Fee:         env.Fee,
			Logs:        env.Logs,
			Data:        data,
			Accounts:    env.Accounts,
			UserAddress: env.UserAddress,
			TokenMint:   env.TokenMint,
			TokenAmount: env.TokenAmount,
			SolAmount:   env.SolAmount,
		}}, true
	}
	return Update{}, false
}
