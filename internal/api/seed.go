package api

import (
	"context"
	"errors"

	"github.com/HemantRana01/TODO/internal/model"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// SeedDemoData 初始化演示账号和示例待办，仅在配置开启时由 main 调用。
func (s *Server) SeedDemoData(ctx context.Context) error {
	const demoUsername = "demo"
	const demoEmail = "demo@todohive.local"

	var user model.User
	err := s.db.WithContext(ctx).Where("username = ?", demoUsername).First(&user).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		hash, hashErr := bcrypt.GenerateFromPassword([]byte("Demo1234"), bcrypt.DefaultCost)
		if hashErr != nil {
			return hashErr
		}
		user = model.User{
			Username:     demoUsername,
			Email:        demoEmail,
			PasswordHash: string(hash),
			FirstName:    "Demo",
			LastName:     "User",
			IsActive:     true,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return err
		}
	}

	var todoCount int64
	if err := s.db.WithContext(ctx).
		Model(&model.Todo{}).
		Where("user_id = ?", user.ID).
		Count(&todoCount).Error; err != nil {
		return err
	}
	if todoCount > 0 {
		return nil
	}

	yesterday := startOfToday().AddDate(0, 0, -1)
	nextWeek := startOfToday().AddDate(0, 0, 7)
	samples := []model.Todo{
		{UserID: user.ID, Title: "Buy groceries", Description: "Milk, eggs, bread", Status: model.StatusPending, DueDate: &nextWeek},
		{UserID: user.ID, Title: "Write project report", Status: model.StatusInProgress, DueDate: &yesterday},
		{UserID: user.ID, Title: "Book dentist appointment", Status: model.StatusCompleted},
		{UserID: user.ID, Title: "Cancel old subscription", Status: model.StatusCancelled},
	}
	if err := s.db.WithContext(ctx).Create(&samples).Error; err != nil {
		return err
	}

	// 清掉可能存在的旧统计缓存
	_ = s.statsCache.Invalidate(ctx, user.ID)

	return nil
}
