package models

import (
	"context"
	"errors"
	"time"

	"github.com/dwellmatch/estates_backend/config"
	"github.com/dwellmatch/estates_backend/utils"
)

type User struct {
	ID        int       `gorm:"primary_key" json:"id"`
	FullName  string    `gorm:"size:100;not null" json:"full_name" binding:"required"`
	Email     string    `gorm:"size:100;uniqueIndex;not null" json:"email" binding:"required,email"`
	Phone     string    `gorm:"size:30" json:"phone"`
	Password  string    `gorm:"size:100;not null" json:"-"`
	Role      string    `gorm:"size:20;not null;default:tenant" json:"role"`
	IsActive  *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewUser struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
	Password string `json:"password" binding:"required,min=8"`
	Role     string `json:"role"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func CreateUser(ctx context.Context, input *NewUser) (*User, error) {

	if !utils.IsValidEmail(input.Email) {
		return nil, errors.New("invalid email")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = "tenant"
	}

	user := User{
		FullName: input.FullName,
		Email:    input.Email,
		Phone:    input.Phone,
		Password: string(hashed),
		Role:     role,
	}

	db := config.GetDB()
	err = db.WithContext(ctx).Create(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login verifies credentials and returns a signed JWT. Agents get their
// agent id embedded in the claims so handlers can authorize assignment
// operations without an extra lookup.
func Login(ctx context.Context, input *LoginInput) (string, *User, error) {

	db := config.GetDB()
	var user User
	if err := db.WithContext(ctx).Where("email = ?", input.Email).First(&user).Error; err != nil {
		return "", nil, utils.ErrorRecordNotFound
	}
	if err := utils.ComparePassword(user.Password, input.Password); err != nil {
		return "", nil, errors.New("invalid credentials")
	}

	agentId := 0
	if user.Role == "agent" {
		var agent Agent
		if err := db.WithContext(ctx).Where("user_id = ?", user.ID).First(&agent).Error; err == nil {
			agentId = agent.ID
		}
	}

	token, err := utils.JwtGenerate(user.ID, agentId, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}
