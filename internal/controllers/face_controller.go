package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hackforge/proctor-backend/internal/models"
)

const descriptorDim = 128

// FaceDescriptorController stores and serves the reference face embedding
// used by the client's identity check. Only the owning subject or a
// privileged role may touch a descriptor.
type FaceDescriptorController struct {
	DB *gorm.DB
}

type faceDescriptorRequest struct {
	Descriptor []float64 `json:"descriptor" binding:"required"`
}

func (fc *FaceDescriptorController) canAccess(c *gin.Context, targetID string) bool {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)
	if IsPrivileged(user.Role) || user.UserID == targetID {
		return true
	}
	c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	return false
}

// Upsert handles POST /users/:id/face-descriptor. The write path
// validates exactly 128 finite values, each within [-1, 1]; out-of-range
// input is rejected naming the offending index and value.
func (fc *FaceDescriptorController) Upsert(c *gin.Context) {
	targetID := c.Param("id")
	if !fc.canAccess(c, targetID) {
		return
	}

	var req faceDescriptorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Descriptor) != descriptorDim {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("descriptor must have exactly %d values, got %d", descriptorDim, len(req.Descriptor)),
		})
		return
	}
	for i, v := range req.Descriptor {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("descriptor value at index %d is not finite", i),
			})
			return
		}
		if v < -1 || v > 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("descriptor value at index %d out of range [-1, 1]: %g", i, v),
			})
			return
		}
	}

	payload, err := json.Marshal(req.Descriptor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	rec := models.FaceDescriptor{UserIDRef: targetID, Values: payload}
	err = fc.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id_ref"}},
		DoUpdates: clause.AssignmentColumns([]string{"values", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "descriptor stored"})
}

// Get handles GET /users/:id/face-descriptor.
func (fc *FaceDescriptorController) Get(c *gin.Context) {
	targetID := c.Param("id")
	if !fc.canAccess(c, targetID) {
		return
	}

	var rec models.FaceDescriptor
	if err := fc.DB.Where("user_id_ref = ?", targetID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no descriptor stored"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var values []float64
	if err := json.Unmarshal(rec.Values, &values); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stored descriptor is corrupt"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"descriptor": values, "updated_at": rec.UpdatedAt})
}
