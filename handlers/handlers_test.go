package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"event-escrow/contracts"
	"event-escrow/models"
	"event-escrow/monitoring"
	"event-escrow/ticketing"
)

var (
	owner   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	custody = common.HexToAddress("0x00000000000000000000000000000000000000a2")
	pool    = common.HexToAddress("0x00000000000000000000000000000000000000a3")
	creator = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	alice   = common.HexToAddress("0x00000000000000000000000000000000000000b1")
	bob     = common.HexToAddress("0x00000000000000000000000000000000000000b2")
	usdc    = common.HexToAddress("0x00000000000000000000000000000000000000d1")
)

const t0 = int64(1_700_000_000)

func init() {
	gin.SetMode(gin.TestMode)
}

type testClock struct {
	mu  sync.Mutex
	now int64
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Unix(c.now, 0)
}

func (c *testClock) set(unix int64) {
	c.mu.Lock()
	c.now = unix
	c.mu.Unlock()
}

// referenceNative records the payment reference each purchase carried.
type referenceNative struct {
	*contracts.MemoryNative

	mu   sync.Mutex
	refs []common.Hash
}

func (n *referenceNative) Receive(ctx context.Context, from common.Address, amount *uint256.Int) (bool, error) {
	if ref, ok := ticketing.PaymentReference(ctx); ok {
		n.mu.Lock()
		n.refs = append(n.refs, ref)
		n.mu.Unlock()
	}
	return n.MemoryNative.Receive(ctx, from, amount)
}

type server struct {
	router   *gin.Engine
	engine   *ticketing.Engine
	clock    *testClock
	bank     *contracts.MemoryBank
	native   *contracts.MemoryNative
	payments *referenceNative
}

func newServer(t *testing.T) *server {
	t.Helper()
	s := &server{
		clock:  &testClock{now: t0},
		bank:   contracts.NewMemoryBank(custody),
		native: contracts.NewMemoryNative(custody),
	}
	s.payments = &referenceNative{MemoryNative: s.native}
	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	engine, err := ticketing.New(ticketing.Config{
		Owner:           owner,
		Custody:         custody,
		SupportedTokens: []common.Address{usdc},
		FeePool:         pool,
		Tokens:          s.bank,
		Native:          s.payments,
		Clock:           s.clock,
		Observer:        metrics,
		Sinks:           []ticketing.Sink{metrics},
	})
	require.NoError(t, err)
	s.engine = engine

	units := NewUnits(18)
	units.Set(usdc, 6)
	s.router = NewRouter(RouterConfig{
		Engine:   engine,
		Units:    units,
		Logger:   zap.NewNop(),
		Gatherer: reg,
		Dev:      NewDevHandler(s.bank, s.native, units, zap.NewNop()),
	})
	return s
}

func (s *server) do(t *testing.T, method, path string, from common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if from != (common.Address{}) {
		req.Header.Set(callerHeader, from.Hex())
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v))
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, w, &body)
	return body.Error
}

func eventRequest(token, price string) models.CreateEventRequest {
	start := t0 + 2*24*3600
	return models.CreateEventRequest{
		Name:         "Rooftop Sessions",
		ImageURL:     "ipfs://rooftop",
		Details:      "Live set and drinks on the roof.",
		Location:     "Lisbon",
		StartDate:    start,
		EndDate:      start + 4*3600,
		StartTime:    20 * 3600,
		EndTime:      24 * 3600,
		TicketPrice:  price,
		PaymentToken: token,
	}
}

func TestCreateAndGetEvent(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/events", creator, eventRequest(usdc.Hex(), "25.5"))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Event models.EventView `json:"event"`
	}
	decode(t, w, &created)
	assert.Equal(t, uint64(0), created.Event.ID)
	assert.Equal(t, "25500000", created.Event.TicketPrice)
	assert.Equal(t, "25.5", created.Event.TicketPriceDisplay)
	assert.Equal(t, "token", created.Event.Rail)
	assert.True(t, created.Event.IsActive)
	assert.Equal(t, creator.Hex(), created.Event.Creator)

	w = s.do(t, http.MethodGet, "/api/v1/events/0", common.Address{}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail models.EventDetailView
	decode(t, w, &detail)
	assert.Empty(t, detail.Attendees)
	require.Len(t, detail.CreatorEvents, 1)

	w = s.do(t, http.MethodGet, "/api/v1/events/count", common.Address{}, nil)
	assert.JSONEq(t, `{"count":1}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/events/7", common.Address{}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "EventNotFound", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/events/abc", common.Address{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateEventRejections(t *testing.T) {
	s := newServer(t)

	noName := eventRequest("", "1")
	noName.Name = ""
	past := eventRequest("", "1")
	past.StartDate = t0

	cases := []struct {
		name   string
		from   common.Address
		req    models.CreateEventRequest
		status int
		code   string
	}{
		{"no caller", common.Address{}, eventRequest("", "1"), http.StatusUnauthorized, "Unauthorized"},
		{"empty name", creator, noName, http.StatusBadRequest, "InvalidName"},
		{"too precise", creator, eventRequest(usdc.Hex(), "1.0000001"), http.StatusBadRequest, "InvalidAmount"},
		{"negative", creator, eventRequest("", "-1"), http.StatusBadRequest, "InvalidAmount"},
		{"zero price", creator, eventRequest("", "0"), http.StatusBadRequest, "InvalidPrice"},
		{"unsupported token", creator, eventRequest(bob.Hex(), "1"), http.StatusBadRequest, "UnsupportedToken"},
		{"bad token", creator, eventRequest("0xnope", "1"), http.StatusBadRequest, "BadRequest"},
		{"start not future", creator, past, http.StatusUnprocessableEntity, "StartNotFuture"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/api/v1/events", tc.from, tc.req)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, errorCode(t, w))
		})
	}
	assert.Equal(t, uint64(0), s.engine.EventCount())
}

func TestTokenTicketLifecycle(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/events", creator, eventRequest(usdc.Hex(), "25.5"))
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, nil)
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "InsufficientAllowance", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/dev/fund", common.Address{}, gin.H{
		"address": alice.Hex(), "token": usdc.Hex(), "amount": "100", "approve": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyPurchased", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/events/0/escrow", common.Address{}, nil)
	var escrow models.EscrowView
	decode(t, w, &escrow)
	assert.Equal(t, "25500000", escrow.TokenFunds)
	assert.Equal(t, "0", escrow.NativeFunds)
	assert.Equal(t, "25.5", escrow.Display)

	w = s.do(t, http.MethodGet, "/api/v1/events/0/tickets/"+alice.Hex(), common.Address{}, nil)
	var check models.TicketCheck
	decode(t, w, &check)
	assert.True(t, check.HasTicket)
	assert.True(t, check.IsActive)

	w = s.do(t, http.MethodGet, "/api/v1/me/tickets", alice, nil)
	var mine models.AccountEvents
	decode(t, w, &mine)
	assert.Equal(t, 1, mine.Total)

	w = s.do(t, http.MethodDelete, "/api/v1/events/0/tickets", alice, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	bal, err := s.bank.Ledger(usdc).BalanceOf(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000_000), bal.Uint64())

	w = s.do(t, http.MethodDelete, "/api/v1/events/0/tickets", alice, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NoTicket", errorCode(t, w))
}

func TestNativeTicketRequiresExactValue(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/events", creator, eventRequest("", "2"))
	require.Equal(t, http.StatusCreated, w.Code)

	s.native.Fund(alice, uint256.NewInt(5_000_000_000_000_000_000))

	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, models.BuyTicketRequest{Value: "1.999"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "IncorrectAmount", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, models.BuyTicketRequest{Value: "2", TxHash: "0x1234"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "BadRequest", errorCode(t, w))

	payment := common.HexToHash("0x5f1d2a7c0e9b4f3a8d6c1b0e2f4a6c8e0d2b4f6a8c0e2d4b6f8a0c2e4d6b8f0a")
	w = s.do(t, http.MethodPost, "/api/v1/events/0/tickets", alice, models.BuyTicketRequest{Value: "2", TxHash: payment.Hex()})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var bought struct {
		Ticket models.TicketCheck `json:"ticket"`
	}
	decode(t, w, &bought)
	assert.True(t, bought.Ticket.HasTicket)
	assert.True(t, bought.Ticket.IsActive)
	assert.Equal(t, []common.Hash{payment}, s.payments.refs)

	w = s.do(t, http.MethodGet, "/api/v1/events/0/escrow", common.Address{}, nil)
	var escrow models.EscrowView
	decode(t, w, &escrow)
	assert.Equal(t, "2000000000000000000", escrow.NativeFunds)
	assert.Equal(t, "2", escrow.Display)
	assert.Equal(t, "3000000000000000000", s.native.BalanceOf(alice).ToBig().String())
}

func TestCancelAndRelease(t *testing.T) {
	s := newServer(t)
	req := eventRequest("", "1")
	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/events", creator, req)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(t, http.MethodPost, "/api/v1/events/0/cancel", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "NotOwner", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/events/0/cancel", creator, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/events/0/cancel", creator, nil)
	assert.Equal(t, "AlreadyCanceled", errorCode(t, w))

	w = s.do(t, http.MethodGet, "/api/v1/me/events", creator, nil)
	var mine models.AccountEvents
	decode(t, w, &mine)
	require.Equal(t, 1, mine.Total)
	assert.Equal(t, uint64(1), mine.Events[0].ID)

	w = s.do(t, http.MethodGet, "/api/v1/creators/"+creator.Hex()+"/events", common.Address{}, nil)
	decode(t, w, &mine)
	assert.Equal(t, 2, mine.Total)

	w = s.do(t, http.MethodPost, "/api/v1/events/1/release", creator, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "EventNotEnded", errorCode(t, w))

	s.clock.set(req.EndDate + 1)
	w = s.do(t, http.MethodPost, "/api/v1/events/1/release", creator, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var released struct {
		Event models.EventView `json:"event"`
	}
	decode(t, w, &released)
	assert.True(t, released.Event.FundsReleased)

	w = s.do(t, http.MethodPost, "/api/v1/events/0/release", creator, nil)
	assert.Equal(t, "CanceledEventNoRelease", errorCode(t, w))
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/admin/pause", bob, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/admin/pause", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/events", creator, eventRequest("", "1"))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Paused", errorCode(t, w))

	w = s.do(t, http.MethodPost, "/api/v1/admin/unpause", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)

	dai := common.HexToAddress("0x00000000000000000000000000000000000000d3")
	w = s.do(t, http.MethodPost, "/api/v1/admin/tokens", owner, models.AddTokenRequest{Address: dai.Hex(), Decimals: 18})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, s.engine.IsSupportedToken(dai))

	w = s.do(t, http.MethodPost, "/api/v1/admin/tokens", owner, models.AddTokenRequest{Address: "0x00"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tokens", common.Address{}, nil)
	var tokens struct {
		Tokens []struct {
			Address  string `json:"address"`
			Decimals int32  `json:"decimals"`
		} `json:"tokens"`
		Paused bool `json:"paused"`
	}
	decode(t, w, &tokens)
	require.Len(t, tokens.Tokens, 3, "native, usdc, dai")
	assert.Equal(t, int32(18), tokens.Tokens[0].Decimals)
	assert.Equal(t, usdc.Hex(), tokens.Tokens[1].Address)
	assert.Equal(t, int32(6), tokens.Tokens[1].Decimals)
	assert.False(t, tokens.Paused)
}

func TestLogsHealthAndMetrics(t *testing.T) {
	s := newServer(t)
	w := s.do(t, http.MethodPost, "/api/v1/events", creator, eventRequest("", "1"))
	require.Equal(t, http.StatusCreated, w.Code)
	w = s.do(t, http.MethodPost, "/api/v1/events/0/cancel", creator, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/logs?from=1", common.Address{}, nil)
	var logs struct {
		Logs  []models.NotificationView `json:"logs"`
		Total int                       `json:"total"`
	}
	decode(t, w, &logs)
	require.Equal(t, 1, logs.Total)
	assert.Equal(t, "EventCanceled", logs.Logs[0].Kind)
	assert.Equal(t, models.KindEventCanceled.Topic().Hex(), logs.Logs[0].Topic)

	w = s.do(t, http.MethodGet, "/api/v1/logs?from=x", common.Address{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/health", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	w = s.do(t, http.MethodGet, "/metrics", common.Address{}, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), `ticketing_operations_total{operation="createEvent",result="ok"} 1`))
}

func TestUnits(t *testing.T) {
	u := NewUnits(18)
	u.Set(usdc, 6)

	v, err := u.ToBase(usdc, "1.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000), v.Uint64())

	v, err = u.ToBase(models.NativeToken, "")
	require.NoError(t, err)
	assert.True(t, v.IsZero())

	_, err = u.ToBase(usdc, "0.0000001")
	assert.ErrorIs(t, err, errBadAmount)
	_, err = u.ToBase(usdc, "abc")
	assert.ErrorIs(t, err, errBadAmount)
	_, err = u.ToBase(models.NativeToken, "1e80")
	assert.ErrorIs(t, err, errBadAmount)

	assert.Equal(t, "0.99", u.Display(usdc, uint256.NewInt(990_000)))
	assert.Equal(t, "0", u.Display(models.NativeToken, new(uint256.Int)))
}

func TestStatusFor(t *testing.T) {
	cases := map[ticketing.Kind]int{
		ticketing.KindValidation:    http.StatusBadRequest,
		ticketing.KindNotFound:      http.StatusNotFound,
		ticketing.KindAuthorization: http.StatusForbidden,
		ticketing.KindStateConflict: http.StatusConflict,
		ticketing.KindCapacity:      http.StatusConflict,
		ticketing.KindFunds:         http.StatusPaymentRequired,
		ticketing.KindTiming:        http.StatusUnprocessableEntity,
		ticketing.KindAdmission:     http.StatusServiceUnavailable,
		ticketing.KindUnknown:       http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, statusFor(kind), kind.String())
	}
}
