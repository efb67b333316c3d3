package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"ticketlottery/internal/models"
	"ticketlottery/internal/random"
	"ticketlottery/internal/ratelimit"
	"ticketlottery/internal/services"
	"ticketlottery/internal/store"
)

func newTestRouter(t *testing.T, policy services.SalesPolicy) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc, err := services.NewLotteryService(services.Dependencies{
		Store: store.NewMemoryStore(),
		Campaigns: services.NewCampaignDirectory(models.Campaign{
			ID:              "camp-1",
			LotteryEligible: true,
			Status:          models.CampaignStatusActive,
			EndDate:         time.Now().Add(30 * 24 * time.Hour),
		}),
		Limiter: ratelimit.NewMemoryLimiter(nil),
		Random:  random.NewSecureSource(),
	}, services.Options{Sales: policy, DrawPolicy: services.AnyTime})
	require.NoError(t, err)

	router := gin.New()
	router.Use(RequestLogger())
	NewHTTPHandler(svc).RegisterRoutes(router)
	return router
}

func do(router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createLottery(t *testing.T, router *gin.Engine, maxTickets int, prizes ...string) models.Lottery {
	t.Helper()
	body := gin.H{
		"campaignId":  "camp-1",
		"drawDate":    time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339),
		"ticketPrice": 200,
		"currency":    "USD",
		"maxTickets":  maxTickets,
	}
	var ps []gin.H
	for _, p := range prizes {
		ps = append(ps, gin.H{"name": p})
	}
	body["prizes"] = ps

	w := do(router, http.MethodPost, "/lotteries", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var l models.Lottery
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
	return l
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHTTPHandler_CreateLottery(t *testing.T) {
	router := newTestRouter(t, services.DefaultSalesPolicy)

	t.Run("json body", func(t *testing.T) {
		l := createLottery(t, router, 10, "Grand", "Second")
		assert.Equal(t, models.StatusActive, l.Status)
		assert.Len(t, l.Prizes, 2)

		w := do(router, http.MethodGet, "/lotteries/"+l.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/lotteries", strings.NewReader("{"))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown campaign", func(t *testing.T) {
		w := do(router, http.MethodPost, "/lotteries", gin.H{
			"campaignId": "other",
			"drawDate":   time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
			"currency":   "USD",
			"maxTickets": 1,
			"prizes":     []gin.H{{"name": "A"}},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "campaign_not_found", errorCode(t, w))
	})

	t.Run("draw date in the past", func(t *testing.T) {
		w := do(router, http.MethodPost, "/lotteries", gin.H{
			"campaignId": "camp-1",
			"drawDate":   time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
			"currency":   "USD",
			"maxTickets": 1,
			"prizes":     []gin.H{{"name": "A"}},
		})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "invalid_draw_date", errorCode(t, w))
	})

	t.Run("multipart with prize csv", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		_ = mw.WriteField("campaignId", "camp-1")
		_ = mw.WriteField("drawDate", time.Now().Add(time.Hour).UTC().Format(time.RFC3339))
		_ = mw.WriteField("currency", "USD")
		_ = mw.WriteField("maxTickets", "50")
		fw, err := mw.CreateFormFile("prizeCSV", "prizes.csv")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("Grand,Television\nSecond,Mug\n,broken\nThird\n"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/lotteries", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		var l models.Lottery
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &l))
		assert.Equal(t, []models.Prize{
			{Name: "Grand", Item: "Television"},
			{Name: "Second", Item: "Mug"},
			{Name: "Third"},
		}, l.Prizes)
	})
}

func TestHTTPHandler_PurchaseAndDraw(t *testing.T) {
	router := newTestRouter(t, services.DefaultSalesPolicy)
	l := createLottery(t, router, 2, "A", "B")
	path := "/lotteries/" + l.ID

	for _, user := range []string{"alice", "bob"} {
		w := do(router, http.MethodPost, path+"/tickets", gin.H{"userId": user, "currency": "USD"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := do(router, http.MethodPost, path+"/tickets", gin.H{"userId": "carol", "currency": "USD"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "lottery_sold_out", errorCode(t, w))

	w = do(router, http.MethodGet, path+"/tickets?user_id=alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tickets struct {
		Tickets []models.Ticket `json:"tickets"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tickets))
	require.Len(t, tickets.Tickets, 1)
	assert.Equal(t, "alice", tickets.Tickets[0].UserID)

	w = do(router, http.MethodPost, path+"/draw", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var drawn struct {
		Winners []models.Winner `json:"winners"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &drawn))
	require.Len(t, drawn.Winners, 2)
	assert.NotEqual(t, drawn.Winners[0].TicketNumber, drawn.Winners[1].TicketNumber)

	w = do(router, http.MethodPost, path+"/draw", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "lottery_not_drawable", errorCode(t, w))

	w = do(router, http.MethodGet, path+"/winners/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "\xef\xbb\xbfprize,item,user_id,ticket_number,draw_date\n"))
	assert.Equal(t, 3, strings.Count(body, "\n"))
	assert.Contains(t, body, drawn.Winners[0].TicketNumber)

	w = do(router, http.MethodGet, path+"/winners/export?format=xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(winnersSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, exportHeader, rows[0])
	assert.Equal(t, "A", rows[1][0])
	assert.Equal(t, drawn.Winners[1].TicketNumber, rows[2][3])

	w = do(router, http.MethodGet, path+"/winners/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHTTPHandler_PurchaseErrors(t *testing.T) {
	router := newTestRouter(t, services.SalesPolicy{Window: time.Minute, MaxPerWindow: 1})
	l := createLottery(t, router, 10, "A")
	path := "/lotteries/" + l.ID + "/tickets"

	w := do(router, http.MethodPost, "/lotteries/missing/tickets", gin.H{"userId": "alice", "currency": "USD"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPost, path, gin.H{"userId": "alice", "currency": "JPY"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "currency_mismatch", errorCode(t, w))

	w = do(router, http.MethodPost, path, gin.H{"currency": "USD"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(router, http.MethodPost, path, gin.H{"userId": "alice", "currency": "USD", "transactionId": "pay-1"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodPost, path, gin.H{"userId": "mallory", "currency": "USD", "transactionId": "pay-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "duplicate_transaction", errorCode(t, w))

	w = do(router, http.MethodPost, path, gin.H{"userId": "alice", "currency": "USD"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit_exceeded", errorCode(t, w))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestHTTPHandler_NotFound(t *testing.T) {
	router := newTestRouter(t, services.DefaultSalesPolicy)

	for _, path := range []string{"/lotteries/missing", "/lotteries/missing/winners", "/lotteries/missing/tickets"} {
		w := do(router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}

	w := do(router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
