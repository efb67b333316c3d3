package handlers

import (
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/xuri/excelize/v2"

	"ticketlottery/internal/models"
	"ticketlottery/internal/services"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService) *HTTPHandler {
	return &HTTPHandler{service: service}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.Health)

	lotteries := router.Group("/lotteries")
	lotteries.POST("", h.CreateLottery)
	lotteries.GET("/:id", h.GetLottery)
	lotteries.GET("/:id/tickets", h.ListTickets)
	lotteries.POST("/:id/tickets", h.PurchaseTicket)
	lotteries.POST("/:id/draw", h.PerformDrawing)
	lotteries.GET("/:id/winners", h.ListWinners)
	lotteries.GET("/:id/winners/export", h.ExportWinners)
}

// Health reports that the process is serving.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CreateLottery accepts either a JSON body or a multipart form whose prizes
// come from an uploaded CSV file.
func (h *HTTPHandler) CreateLottery(c *gin.Context) {
	var (
		req services.CreateLotteryRequest
		err error
	)
	if c.ContentType() == "multipart/form-data" {
		req, err = createRequestFromForm(c)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		badRequest(c, err)
		return
	}

	l, err := h.service.CreateLottery(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, l)
}

func createRequestFromForm(c *gin.Context) (services.CreateLotteryRequest, error) {
	req := services.CreateLotteryRequest{
		CampaignID: c.PostForm("campaignId"),
		Currency:   c.PostForm("currency"),
	}

	drawDate, err := time.Parse(time.RFC3339, c.PostForm("drawDate"))
	if err != nil {
		return req, fmt.Errorf("drawDate: %w", err)
	}
	req.DrawDate = drawDate

	if req.TicketPrice, err = strconv.ParseInt(c.DefaultPostForm("ticketPrice", "0"), 10, 64); err != nil {
		return req, fmt.Errorf("ticketPrice: %w", err)
	}
	if req.MaxTickets, err = strconv.Atoi(c.PostForm("maxTickets")); err != nil {
		return req, fmt.Errorf("maxTickets: %w", err)
	}

	file, _, err := c.Request.FormFile("prizeCSV")
	if err != nil {
		return req, fmt.Errorf("prizeCSV: %w", err)
	}
	defer file.Close()

	req.Prizes, err = readPrizesCSV(file)
	return req, err
}

// readPrizesCSV reads "name[,item]" rows in draw order.
func readPrizesCSV(r io.Reader) ([]models.Prize, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var prizes []models.Prize
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading prize CSV: %w", err)
		}

		if len(record) == 0 || len(record) > 2 || strings.TrimSpace(record[0]) == "" {
			logger.Infof("Skipping malformed prize CSV record: %v", record)
			continue
		}

		p := models.Prize{Name: strings.TrimSpace(record[0])}
		if len(record) == 2 {
			p.Item = strings.TrimSpace(record[1])
		}
		prizes = append(prizes, p)
	}
	return prizes, nil
}

// GetLottery returns a lottery, with winners once drawn.
func (h *HTTPHandler) GetLottery(c *gin.Context) {
	l, err := h.service.GetLottery(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// ListTickets returns the ledger of a lottery, optionally for one user.
func (h *HTTPHandler) ListTickets(c *gin.Context) {
	tickets, err := h.service.ListTickets(c.Request.Context(), c.Param("id"), c.Query("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tickets": tickets})
}

// PurchaseTicket issues one ticket for the user in the body.
func (h *HTTPHandler) PurchaseTicket(c *gin.Context) {
	var req services.PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.LotteryID = c.Param("id")

	t, err := h.service.PurchaseTicket(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// PerformDrawing draws the winners of a lottery.
func (h *HTTPHandler) PerformDrawing(c *gin.Context) {
	winners, err := h.service.PerformDrawing(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

// ListWinners returns the winners in prize order.
func (h *HTTPHandler) ListWinners(c *gin.Context) {
	winners, err := h.service.ListWinners(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

// ExportWinners handles the request to download the winners as a CSV
// (default) or XLSX file.
func (h *HTTPHandler) ExportWinners(c *gin.Context) {
	id := c.Param("id")
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		badRequest(c, fmt.Errorf("invalid export format %q, supported: csv, xlsx", format))
		return
	}

	winners, err := h.service.ListWinners(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	if format == "xlsx" {
		writeWinnersXLSX(c, id, winners)
		return
	}
	writeWinnersCSV(c, id, winners)
}

var exportHeader = []string{"prize", "item", "user_id", "ticket_number", "draw_date"}

func exportRow(w models.Winner) []string {
	return []string{
		w.Prize.Name,
		w.Prize.Item,
		w.UserID,
		w.TicketNumber,
		w.DrawDate.UTC().Format(time.RFC3339),
	}
}

func writeWinnersCSV(c *gin.Context, id string, winners []models.Winner) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=lottery_%s_winners.csv", id))

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write(exportHeader); err != nil {
		logger.Errorf("Error writing CSV header: %v", err)
		return
	}
	for _, winner := range winners {
		if err := w.Write(exportRow(winner)); err != nil {
			logger.Errorf("Error writing CSV row: %v", err)
			return
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		logger.Errorf("Error flushing CSV writer: %v", err)
	}
}

const winnersSheet = "Winners"

func writeWinnersXLSX(c *gin.Context, id string, winners []models.Winner) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", winnersSheet); err != nil {
		writeError(c, err)
		return
	}
	rows := make([][]string, 0, len(winners)+1)
	rows = append(rows, exportHeader)
	for _, winner := range winners {
		rows = append(rows, exportRow(winner))
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			writeError(c, err)
			return
		}
		values := make([]interface{}, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := f.SetSheetRow(winnersSheet, cell, &values); err != nil {
			writeError(c, err)
			return
		}
	}

	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=lottery_%s_winners.xlsx", id))
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logger.Errorf("Error writing XLSX: %v", err)
	}
}
