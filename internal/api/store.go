package api

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/HemantRana01/TODO/internal/model"
	"github.com/HemantRana01/TODO/internal/pkg/statscache"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// 存储层统一错误。Handler 根据它们映射 HTTP 状态码。
var (
	ErrNotFound = errors.New("record not found")
	ErrConflict = errors.New("duplicate record")
)

// TodoFilter 分页查询条件。字段校验在 handler 完成，这里只负责拼接谓词。
type TodoFilter struct {
	Status    string     // 为空表示不过滤
	DueFrom   *time.Time // 截止日期下界（含）
	DueTo     *time.Time // 截止日期上界（含）
	Page      int        // 从 1 开始
	Limit     int        // [1,100]
	SortBy    string     // 已映射好的列名: created_at / updated_at / due_date / title
	SortOrder string     // ASC / DESC
}

// TodoPage 分页查询结果信封。
type TodoPage struct {
	Page       int
	Limit      int
	Total      int64
	TotalPages int
	HasNext    bool
	HasPrev    bool
	Data       []model.Todo
}

// TodoStore 待办存储接口。所有查询都以 userID 作为属主条件。
type TodoStore interface {
	CreateTodo(ctx context.Context, todo *model.Todo) error
	ListTodos(ctx context.Context, userID uint, filter TodoFilter) (*TodoPage, error)
	ListAllTodos(ctx context.Context, userID uint) ([]model.Todo, error)
	ListTodosByStatus(ctx context.Context, userID uint, status model.TodoStatus) ([]model.Todo, error)
	ListOverdueTodos(ctx context.Context, userID uint, today time.Time) ([]model.Todo, error)
	GetTodo(ctx context.Context, id, userID uint) (*model.Todo, error)
	PatchTodo(ctx context.Context, id uint, updates map[string]interface{}) (*model.Todo, error)
	DeleteTodo(ctx context.Context, id uint) error
	CountTodos(ctx context.Context, userID uint) (int64, error)
	TodoStats(ctx context.Context, userID uint, today time.Time) (statscache.Stats, error)
}

// UserStore 用户存储接口。
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	FindUserByID(ctx context.Context, id uint) (*model.User, error)
	FindUserByUsername(ctx context.Context, username string) (*model.User, error)
	FindUserByEmail(ctx context.Context, email string) (*model.User, error)
	PatchUser(ctx context.Context, id uint, updates map[string]interface{}) (*model.User, error)
}

type dbTodoStore struct {
	db *gorm.DB
}

// NewTodoStore 创建基于 gorm 的待办存储。
func NewTodoStore(db *gorm.DB) TodoStore {
	return dbTodoStore{db: db}
}

func (s dbTodoStore) CreateTodo(ctx context.Context, todo *model.Todo) error {
	if todo.Status == "" {
		todo.Status = model.StatusPending
	}
	if err := s.db.WithContext(ctx).Create(todo).Error; err != nil {
		return translateDBErr(err)
	}
	return nil
}

// ListTodos 执行过滤 + 排序 + 分页查询。
//
// total 在未分页的谓词集合上统计；排序键相同时按 id 升序打破平局，
// 保证翻页时结果顺序稳定。
func (s dbTodoStore) ListTodos(ctx context.Context, userID uint, filter TodoFilter) (*TodoPage, error) {
	query := s.db.WithContext(ctx).Model(&model.Todo{}).Where("user_id = ?", userID)

	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.DueFrom != nil {
		query = query.Where("due_date >= ?", *filter.DueFrom)
	}
	if filter.DueTo != nil {
		query = query.Where("due_date <= ?", *filter.DueTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, translateDBErr(err)
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	limit := filter.Limit
	if limit < 1 {
		limit = 10
	}
	offset := (page - 1) * limit

	todos := []model.Todo{} // 空结果序列化为 [] 而不是 null
	if err := query.
		Order(sortBy + " " + sortOrder).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Find(&todos).Error; err != nil {
		return nil, translateDBErr(err)
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	return &TodoPage{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
		Data:       todos,
	}, nil
}

func (s dbTodoStore) ListAllTodos(ctx context.Context, userID uint) ([]model.Todo, error) {
	todos := []model.Todo{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id ASC").
		Find(&todos).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return todos, nil
}

func (s dbTodoStore) ListTodosByStatus(ctx context.Context, userID uint, status model.TodoStatus) ([]model.Todo, error) {
	todos := []model.Todo{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at DESC").
		Order("id ASC").
		Find(&todos).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return todos, nil
}

// ListOverdueTodos 返回截止日期早于 today 且未完成的待办，按截止日期升序。
func (s dbTodoStore) ListOverdueTodos(ctx context.Context, userID uint, today time.Time) ([]model.Todo, error) {
	todos := []model.Todo{}
	if err := s.db.WithContext(ctx).
		Where("user_id = ? AND due_date < ? AND status <> ?", userID, today, model.StatusCompleted).
		Order("due_date ASC").
		Order("id ASC").
		Find(&todos).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return todos, nil
}

func (s dbTodoStore) GetTodo(ctx context.Context, id, userID uint) (*model.Todo, error) {
	var todo model.Todo
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&todo).Error
	if err != nil {
		return nil, translateDBErr(err)
	}
	return &todo, nil
}

func (s dbTodoStore) PatchTodo(ctx context.Context, id uint, updates map[string]interface{}) (*model.Todo, error) {
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).
			Model(&model.Todo{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return nil, translateDBErr(err)
		}
	} else {
		// 空补丁也要推进 updated_at
		if err := s.db.WithContext(ctx).
			Model(&model.Todo{}).
			Where("id = ?", id).
			Update("updated_at", time.Now()).Error; err != nil {
			return nil, translateDBErr(err)
		}
	}

	var todo model.Todo
	if err := s.db.WithContext(ctx).First(&todo, id).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return &todo, nil
}

func (s dbTodoStore) DeleteTodo(ctx context.Context, id uint) error {
	return translateDBErr(s.db.WithContext(ctx).Delete(&model.Todo{}, id).Error)
}

func (s dbTodoStore) CountTodos(ctx context.Context, userID uint) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.Todo{}).
		Where("user_id = ?", userID).
		Count(&count).Error; err != nil {
		return 0, translateDBErr(err)
	}
	return count, nil
}

// TodoStats 聚合用户的待办统计。overdue 与 ListOverdueTodos 使用同一谓词。
func (s dbTodoStore) TodoStats(ctx context.Context, userID uint, today time.Time) (statscache.Stats, error) {
	var stats statscache.Stats
	base := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&model.Todo{}).Where("user_id = ?", userID)
	}

	if err := base().Count(&stats.Total).Error; err != nil {
		return stats, translateDBErr(err)
	}
	if err := base().Where("status = ?", model.StatusCompleted).Count(&stats.Completed).Error; err != nil {
		return stats, translateDBErr(err)
	}
	if err := base().Where("status = ?", model.StatusPending).Count(&stats.Pending).Error; err != nil {
		return stats, translateDBErr(err)
	}
	if err := base().
		Where("due_date < ? AND status <> ?", today, model.StatusCompleted).
		Count(&stats.Overdue).Error; err != nil {
		return stats, translateDBErr(err)
	}
	return stats, nil
}

type dbUserStore struct {
	db *gorm.DB
}

// NewUserStore 创建基于 gorm 的用户存储。
func NewUserStore(db *gorm.DB) UserStore {
	return dbUserStore{db: db}
}

func (s dbUserStore) CreateUser(ctx context.Context, user *model.User) error {
	return translateDBErr(s.db.WithContext(ctx).Create(user).Error)
}

func (s dbUserStore) FindUserByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return &user, nil
}

func (s dbUserStore) FindUserByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return &user, nil
}

func (s dbUserStore) FindUserByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return &user, nil
}

func (s dbUserStore) PatchUser(ctx context.Context, id uint, updates map[string]interface{}) (*model.User, error) {
	if len(updates) > 0 {
		if err := s.db.WithContext(ctx).
			Model(&model.User{}).
			Where("id = ?", id).
			Updates(updates).Error; err != nil {
			return nil, translateDBErr(err)
		}
	}

	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translateDBErr(err)
	}
	return &user, nil
}

// translateDBErr 将驱动错误折叠为存储层错误。
func translateDBErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isDuplicateKeyErr(err) {
		return ErrConflict
	}
	return err
}

func isDuplicateKeyErr(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	// sqlite（测试环境）没有类型化的冲突错误
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
