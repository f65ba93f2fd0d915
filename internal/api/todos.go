package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// createTodoRequest 创建待办的请求参数。
type createTodoRequest struct {
	Title       string `json:"title" binding:"required,min=1,max=255"`
	Description string `json:"description"`
	Status      string `json:"status"`
	DueDate     string `json:"dueDate"` // YYYY-MM-DD
}

// updateTodoRequest 部分更新的请求参数，未提供的字段保持不变。
type updateTodoRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	DueDate     *string `json:"dueDate"`
}

// listTodosQuery 分页列表的查询参数。
// 超出范围的 page/limit 直接拒绝，不做静默截断。
type listTodosQuery struct {
	Status      string `form:"status"`
	DueDateFrom string `form:"dueDateFrom"`
	DueDateTo   string `form:"dueDateTo"`
	Page        int    `form:"page,default=1" binding:"min=1"`
	Limit       int    `form:"limit,default=10" binding:"min=1,max=100"`
	SortBy      string `form:"sortBy"`
	SortOrder   string `form:"sortOrder"`
}

type todoResponse struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	DueDate     string    `json:"dueDate,omitempty"` // YYYY-MM-DD
	UserID      uint      `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type paginatedTodosResponse struct {
	Page       int            `json:"page"`
	Limit      int            `json:"limit"`
	Total      int64          `json:"total"`
	TotalPages int            `json:"totalPages"`
	HasNext    bool           `json:"hasNext"`
	HasPrev    bool           `json:"hasPrev"`
	Data       []todoResponse `json:"data"`
}

// handleCreateTodo 创建待办，属主强制为当前登录用户。
//
// POST /todos
func (s *Server) handleCreateTodo(c *gin.Context) {
	var req createTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	status := model.StatusPending
	if req.Status != "" {
		if !model.ValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		status = model.TodoStatus(req.Status)
	}

	dueDate, err := parseDueDate(req.DueDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDate, expected YYYY-MM-DD"})
		return
	}

	todo := model.Todo{
		UserID:      getUserID(c),
		Title:       req.Title,
		Description: req.Description,
		Status:      status,
		DueDate:     dueDate,
	}
	if err := s.todoStore.CreateTodo(c.Request.Context(), &todo); err != nil {
		s.logger.Error("create todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create todo failed"})
		return
	}

	if metrics.TodosCreatedTotal != nil {
		metrics.TodosCreatedTotal.Inc()
	}
	s.invalidateStats(c, todo.UserID)
	c.JSON(http.StatusCreated, toTodoResponse(&todo))
}

// handleListTodos 按条件分页返回当前用户的待办。
//
// GET /todos?status=&dueDateFrom=&dueDateTo=&page=&limit=&sortBy=&sortOrder=
func (s *Server) handleListTodos(c *gin.Context) {
	var q listTodosQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if q.Status != "" && !model.ValidStatus(q.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	sortBy, ok := mapSortField(q.SortBy)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sortBy"})
		return
	}
	sortOrder, ok := mapSortOrder(q.SortOrder)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid sortOrder"})
		return
	}

	dueFrom, err := parseDueDate(q.DueDateFrom)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDateFrom, expected YYYY-MM-DD"})
		return
	}
	dueTo, err := parseDueDate(q.DueDateTo)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDateTo, expected YYYY-MM-DD"})
		return
	}

	page, err := s.todoStore.ListTodos(c.Request.Context(), getUserID(c), TodoFilter{
		Status:    q.Status,
		DueFrom:   dueFrom,
		DueTo:     dueTo,
		Page:      q.Page,
		Limit:     q.Limit,
		SortBy:    sortBy,
		SortOrder: sortOrder,
	})
	if err != nil {
		s.logger.Error("list todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}

	c.JSON(http.StatusOK, paginatedTodosResponse{
		Page:       page.Page,
		Limit:      page.Limit,
		Total:      page.Total,
		TotalPages: page.TotalPages,
		HasNext:    page.HasNext,
		HasPrev:    page.HasPrev,
		Data:       toTodoResponses(page.Data),
	})
}

// handleListAllTodos 返回当前用户的全部待办，不分页。
//
// GET /todos/all
func (s *Server) handleListAllTodos(c *gin.Context) {
	todos, err := s.todoStore.ListAllTodos(c.Request.Context(), getUserID(c))
	if err != nil {
		s.logger.Error("list all todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}
	c.JSON(http.StatusOK, toTodoResponses(todos))
}

// handleListTodosByStatus 按状态过滤。
//
// GET /todos/status/:status
func (s *Server) handleListTodosByStatus(c *gin.Context) {
	status := c.Param("status")
	if !model.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}

	todos, err := s.todoStore.ListTodosByStatus(c.Request.Context(), getUserID(c), model.TodoStatus(status))
	if err != nil {
		s.logger.Error("list todos by status failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}
	c.JSON(http.StatusOK, toTodoResponses(todos))
}

// handleListOverdueTodos 返回已逾期且未完成的待办。
//
// GET /todos/overdue
func (s *Server) handleListOverdueTodos(c *gin.Context) {
	todos, err := s.todoStore.ListOverdueTodos(c.Request.Context(), getUserID(c), startOfToday())
	if err != nil {
		s.logger.Error("list overdue todos failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list todos failed"})
		return
	}
	c.JSON(http.StatusOK, toTodoResponses(todos))
}

// handleGetTodo 查询单条待办。属主不匹配与不存在同样返回 404。
//
// GET /todos/:id
func (s *Server) handleGetTodo(c *gin.Context) {
	id, ok := parseTodoID(c)
	if !ok {
		return
	}

	todo, err := s.todoStore.GetTodo(c.Request.Context(), id, getUserID(c))
	if err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}
	c.JSON(http.StatusOK, toTodoResponse(todo))
}

// handleUpdateTodo 部分更新：先做存在性与属主检查，再只改请求里出现的字段。
//
// PATCH /todos/:id
func (s *Server) handleUpdateTodo(c *gin.Context) {
	id, ok := parseTodoID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if _, err := s.todoStore.GetTodo(c.Request.Context(), id, userID); err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}

	var req updateTodoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" || len(title) > 255 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid title"})
			return
		}
		updates["title"] = title
	}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.Status != nil {
		if !model.ValidStatus(*req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		updates["status"] = *req.Status
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			updates["due_date"] = nil
		} else {
			dueDate, err := parseDueDate(*req.DueDate)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid dueDate, expected YYYY-MM-DD"})
				return
			}
			updates["due_date"] = *dueDate
		}
	}

	todo, err := s.todoStore.PatchTodo(c.Request.Context(), id, updates)
	if err != nil {
		s.respondTodoErr(c, err, "update todo failed")
		return
	}

	s.invalidateStats(c, userID)
	c.JSON(http.StatusOK, toTodoResponse(todo))
}

// handleToggleTodoStatus 在 completed 与 pending 间二值翻转：
// completed → pending，其余任何状态 → completed。
//
// PATCH /todos/:id/toggle
func (s *Server) handleToggleTodoStatus(c *gin.Context) {
	id, ok := parseTodoID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	todo, err := s.todoStore.GetTodo(c.Request.Context(), id, userID)
	if err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}

	newStatus := model.StatusCompleted
	if todo.Status == model.StatusCompleted {
		newStatus = model.StatusPending
	}

	updated, err := s.todoStore.PatchTodo(c.Request.Context(), id, map[string]interface{}{
		"status": newStatus,
	})
	if err != nil {
		s.respondTodoErr(c, err, "toggle todo failed")
		return
	}

	s.invalidateStats(c, userID)
	c.JSON(http.StatusOK, toTodoResponse(updated))
}

// handleDeleteTodo 删除待办。
//
// DELETE /todos/:id
func (s *Server) handleDeleteTodo(c *gin.Context) {
	id, ok := parseTodoID(c)
	if !ok {
		return
	}
	userID := getUserID(c)

	if _, err := s.todoStore.GetTodo(c.Request.Context(), id, userID); err != nil {
		s.respondTodoErr(c, err, "get todo failed")
		return
	}

	if err := s.todoStore.DeleteTodo(c.Request.Context(), id); err != nil {
		s.logger.Error("delete todo failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete todo failed"})
		return
	}

	s.invalidateStats(c, userID)
	c.Status(http.StatusOK)
}

// parseTodoID 解析路径参数中的待办 ID。
// 非法 ID 与不存在的 ID 同样按 404 处理，不暴露资源是否存在。
func parseTodoID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
		return 0, false
	}
	return uint(id), true
}

func (s *Server) respondTodoErr(c *gin.Context, err error, logMsg string) {
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Todo not found"})
		return
	}
	s.logger.Error(logMsg, slog.String("error", err.Error()))
	c.JSON(http.StatusInternalServerError, gin.H{"error": logMsg})
}

func (s *Server) invalidateStats(c *gin.Context, userID uint) {
	if err := s.statsCache.Invalidate(c.Request.Context(), userID); err != nil {
		s.logger.Warn("invalidate stats cache failed", slog.String("error", err.Error()))
	}
}

// mapSortField 将查询参数中的排序字段映射为列名。
//
// 支持的字符串: "createdAt", "updatedAt", "dueDate", "title"。
//
// 参数:
//
//	field: 排序字段字符串（空串使用默认 created_at）
//
// 返回值:
//
//	string: 对应的列名
//	bool: 是否合法
func mapSortField(field string) (string, bool) {
	switch field {
	case "", "createdAt":
		return "created_at", true
	case "updatedAt":
		return "updated_at", true
	case "dueDate":
		return "due_date", true
	case "title":
		return "title", true
	default:
		return "", false
	}
}

func mapSortOrder(order string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(order)) {
	case "", "desc":
		return "DESC", true
	case "asc":
		return "ASC", true
	default:
		return "", false
	}
}

func parseDueDate(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(dateLayout, raw, time.Local)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toTodoResponse(todo *model.Todo) todoResponse {
	resp := todoResponse{
		ID:          todo.ID,
		Title:       todo.Title,
		Description: todo.Description,
		Status:      string(todo.Status),
		UserID:      todo.UserID,
		CreatedAt:   todo.CreatedAt,
		UpdatedAt:   todo.UpdatedAt,
	}
	if todo.DueDate != nil {
		resp.DueDate = todo.DueDate.Format(dateLayout)
	}
	return resp
}

func toTodoResponses(todos []model.Todo) []todoResponse {
	out := make([]todoResponse, 0, len(todos))
	for i := range todos {
		out = append(out, toTodoResponse(&todos[i]))
	}
	return out
}
