package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hackforge/proctor-backend/internal/models"
)

type SubmissionController struct {
	DB *gorm.DB
}

type autoSubmitItem struct {
	ProblemID     uint   `json:"problemId" binding:"required"`
	AnswerPayload string `json:"answerPayload"`
	Language      string `json:"language"`
}

type autoSubmitRequest struct {
	Items  []autoSubmitItem `json:"items" binding:"required"`
	Reason string           `json:"reason" binding:"required"`
	Round  int              `json:"round"`
}

// AutoSubmit handles POST /submissions/auto. The caller cannot read the
// response (fire-and-forget beacon), so duplicate deliveries must land
// idempotently: the unique (subject, problem, round) index plus DO
// NOTHING means a re-delivered beacon never overwrites an earlier,
// possibly graded, submission.
func (sc *SubmissionController) AutoSubmit(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var req autoSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "items must not be empty"})
		return
	}

	accepted := 0
	for _, item := range req.Items {
		sub := models.Submission{
			SubjectID: user.UserID,
			ProblemID: item.ProblemID,
			Round:     req.Round,
			Language:  item.Language,
			Payload:   item.AnswerPayload,
			Source:    "auto",
			Reason:    req.Reason,
		}
		res := sc.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "subject_id"}, {Name: "problem_id"}, {Name: "round"}},
			DoNothing: true,
		}).Create(&sub)
		if res.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
			return
		}
		if res.RowsAffected > 0 {
			accepted++
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "accepted": accepted})
}

// List serves the admin/judge review table.
func (sc *SubmissionController) List(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	q := sc.DB.Model(&models.Submission{}).Order("created_at DESC").Limit(limit)
	if s := c.Query("subjectId"); s != "" {
		q = q.Where("subject_id = ?", s)
	}
	if s := c.Query("round"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			q = q.Where("round = ?", n)
		}
	}
	var subs []models.Submission
	if err := q.Find(&subs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": subs, "meta": gin.H{"total": len(subs)}})
}
