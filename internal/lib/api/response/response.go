// Package response формирует JSON-ответы API в едином конверте
// {success: true, data, ...} или {success: false, message}.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/linemk/farmsync/internal/lib/listquery"
)

type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// List ответ для списочных эндпоинтов
type List struct {
	Success    bool                 `json:"success"`
	Count      int                  `json:"count"`
	Total      int                  `json:"total"`
	Pagination listquery.Pagination `json:"pagination"`
	Data       any                  `json:"data"`
}

// JSON пишет произвольное тело с заданным статусом
func JSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(body)
}

func OK(w http.ResponseWriter, status int, data any) error {
	return JSON(w, status, Response{Success: true, Data: data})
}

// Message успешный ответ без данных
func Message(w http.ResponseWriter, status int, msg string) error {
	return JSON(w, status, Response{Success: true, Message: msg})
}

func Error(w http.ResponseWriter, status int, msg string) {
	_ = JSON(w, status, Response{Success: false, Message: msg})
}

// Page ответ со страницей списка; count - число элементов на странице
func Page(w http.ResponseWriter, q listquery.Query, count, total int, data any) error {
	return JSON(w, http.StatusOK, List{
		Success:    true,
		Count:      count,
		Total:      total,
		Pagination: q.Pagination(total),
		Data:       data,
	})
}
