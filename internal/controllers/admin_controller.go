package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/hackforge/proctor-backend/internal/models"
	"github.com/hackforge/proctor-backend/internal/utils"
)

type AdminController struct {
	DB *gorm.DB
}

func userJSON(u models.User) gin.H {
	return gin.H{
		"id":        u.ID,
		"user_id":   u.UserID,
		"full_name": u.FullName,
		"email":     u.Email,
		"role":      u.Role,
		"team_name": u.TeamName,
		"active":    u.Active,
		"created_at": u.CreatedAt,
	}
}

func (a *AdminController) ListUsers(c *gin.Context) {
	limit := 50
	page := 1
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}

	q := a.DB.Model(&models.User{})
	if role := c.Query("role"); role != "" {
		q = q.Where("role = ?", role)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	var users []models.User
	if err := q.Order("created_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&users).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	data := make([]gin.H, 0, len(users))
	for _, u := range users {
		data = append(data, userJSON(u))
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": gin.H{"total": total, "page": page, "limit": limit}})
}

func (a *AdminController) GetUser(c *gin.Context) {
	var user models.User
	if err := a.DB.Where("user_id = ?", c.Param("user_id")).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

type updateUserRequest struct {
	FullName *string `json:"full_name"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	TeamName *string `json:"team_name"`
	Active   *bool   `json:"active"`
}

func (a *AdminController) UpdateUser(c *gin.Context) {
	var user models.User
	if err := a.DB.Where("user_id = ?", c.Param("user_id")).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Role != nil {
		if !IsValidRole(*req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
			return
		}
		user.Role = *req.Role
	}
	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.TeamName != nil {
		user.TeamName = *req.TeamName
	}
	if req.Active != nil {
		user.Active = *req.Active
	}
	if req.Password != nil {
		pw, err := utils.HashPassword(*req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to hash password"})
			return
		}
		user.Password = pw
	}

	if err := a.DB.Save(&user).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, userJSON(user))
}

func (a *AdminController) DeleteUser(c *gin.Context) {
	res := a.DB.Where("user_id = ?", c.Param("user_id")).Delete(&models.User{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}
