package api

import (
	"bytes"
	"database/sql"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/taranp/isolab/internal/orders"
	"github.com/taranp/isolab/internal/scenario"
	"github.com/taranp/isolab/pkg/errors"
	"github.com/taranp/isolab/pkg/logger"
)

type fakeEvents struct {
	lines chan string
}

func (f *fakeEvents) Attach() (uuid.UUID, <-chan string) {
	return uuid.New(), f.lines
}

func (f *fakeEvents) Detach(uuid.UUID) {}

func newTestServer(sim Simulator, store Store, events Events) *server {
	var cfg Config
	cfg.HTTP.Addr = "localhost:0"

	return NewServer(cfg, logger.NewStub(), sim, store, events).(*server)
}

func postJSON(t *testing.T, s *server, path, body string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Test(req)
	require.NoError(t, err)
	return resp
}

func TestServer_Simulate(t *testing.T) {
	type testcase struct {
		name     string
		path     string
		body     string
		wantLvl  sql.IsolationLevel
		wantOpts scenario.Options
	}

	tests := [...]testcase{
		{
			name:     "defaults to success",
			path:     "/scenarios/dirty-read/a",
			body:     `{"isolationLevel":"READ UNCOMMITTED"}`,
			wantLvl:  sql.LevelReadUncommitted,
			wantOpts: scenario.Options{Success: true},
		},
		{
			name:     "explicit failure flag",
			path:     "/scenarios/dirty-read/a",
			body:     `{"isolationLevel":"READ COMMITTED","isSuccess":false}`,
			wantLvl:  sql.LevelReadCommitted,
			wantOpts: scenario.Options{Success: false},
		},
		{
			name:     "exclusive lock flag",
			path:     "/scenarios/write-skew/a",
			body:     `{"isolationLevel":"SERIALIZABLE","isExclusiveLock":true}`,
			wantLvl:  sql.LevelSerializable,
			wantOpts: scenario.Options{Success: true, ExclusiveLock: true},
		},
		{
			name:     "unrecognized level falls back",
			path:     "/scenarios/lost-update/b",
			body:     `{"isolationLevel":"whatever"}`,
			wantLvl:  sql.LevelReadCommitted,
			wantOpts: scenario.Options{Success: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			sim := NewMockSimulator(ctrl)
			sim.EXPECT().
				Run(gomock.Any(), gomock.Any(), tt.wantLvl, tt.wantOpts).
				Times(1).
				Return(nil)

			s := newTestServer(sim, NewMockStore(ctrl), &fakeEvents{})

			resp := postJSON(t, s, tt.path, tt.body)
			require.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestServer_SimulateUnknownAnomaly(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := newTestServer(NewMockSimulator(ctrl), NewMockStore(ctrl), &fakeEvents{})

	resp := postJSON(t, s, "/scenarios/time-travel/a", `{"isolationLevel":"SERIALIZABLE"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SimulateBadJSON(t *testing.T) {
	ctrl := gomock.NewController(t)

	s := newTestServer(NewMockSimulator(ctrl), NewMockStore(ctrl), &fakeEvents{})

	resp := postJSON(t, s, "/scenarios/dirty-read/a", `{"isolationLevel":`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SimulateBeginFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	sim := NewMockSimulator(ctrl)
	sim.EXPECT().
		Run(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(errors.Error("connection refused"))

	s := newTestServer(sim, NewMockStore(ctrl), &fakeEvents{})

	resp := postJSON(t, s, "/scenarios/dirty-read/a", `{"isolationLevel":"SNAPSHOT"}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_Reset(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := NewMockStore(ctrl)
	store.EXPECT().Reset(gomock.Any()).Return(nil)

	s := newTestServer(NewMockSimulator(ctrl), store, &fakeEvents{})

	resp := postJSON(t, s, "/reset", `{}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ResetFailure(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := NewMockStore(ctrl)
	store.EXPECT().Reset(gomock.Any()).Return(errors.Error("table is gone"))

	s := newTestServer(NewMockSimulator(ctrl), store, &fakeEvents{})

	resp := postJSON(t, s, "/reset", `{}`)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestServer_Orders(t *testing.T) {
	ctrl := gomock.NewController(t)

	store := NewMockStore(ctrl)
	store.EXPECT().List(gomock.Any()).Return([]orders.Order{
		{ID: 1, ProductName: "Apple", Quantity: 51, Price: 75, Status: orders.StatusPending},
	}, nil)

	s := newTestServer(NewMockSimulator(ctrl), store, &fakeEvents{})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	resp, err := s.http.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `"productName":"Apple"`)
	require.Contains(t, string(body), `"quantity":51`)
}

func TestServer_EventsStream(t *testing.T) {
	ctrl := gomock.NewController(t)

	lines := make(chan string, 2)
	lines <- "Transaction A started."
	lines <- "Transaction A committed."
	close(lines)

	s := newTestServer(NewMockSimulator(ctrl), NewMockStore(ctrl), &fakeEvents{lines: lines})

	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	resp, err := s.http.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t,
		"event: ReceiveTransactionState\ndata: Transaction A started.\n\n"+
			"event: ReceiveTransactionState\ndata: Transaction A committed.\n\n",
		string(body))
}
