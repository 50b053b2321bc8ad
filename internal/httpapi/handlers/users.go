package handlers

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/healthlink/healthlink-backend/internal/auth"
	"github.com/healthlink/healthlink-backend/internal/common"
	"github.com/healthlink/healthlink-backend/internal/email"
	"github.com/healthlink/healthlink-backend/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// generate a 11 digit random username
func randomUsername11() (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	out := make([]byte, 11)
	for i := 0; i < 11; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(letters))))
		if err != nil {
			return "", err
		}
		out[i] = letters[n.Int64()]
	}
	return string(out), nil
}

func randomCaptcha6() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

type sendCaptchaReq struct {
	Email string `json:"email" binding:"required"`
}

func (h *Handler) SendCaptcha(c *gin.Context) {
	var req sendCaptchaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	code, err := randomCaptcha6()
	if err != nil {
		failInternal(c, "failed to generate captcha")
		return
	}
	if err := h.Redis.SetCaptcha(c.Request.Context(), req.Email, code); err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}

	go func(to, code string) {
		subject := "HealthLink verification code"
		body := "Your verification code is: " + code + "\n\nIt expires in 10 minutes.\n"
		if err := email.SendText(h.SMTPSetting, to, subject, body); err != nil {
			// Dev setups have no SMTP; the code is still in Redis.
			return
		}
	}(req.Email, code)

	common.OK(c, gin.H{"sent": true})
}

type createUserReq struct {
	Email       string `json:"email"`
	Captcha     string `json:"captcha"`
	Password    string `json:"password"`
	Role        string `json:"role"`
	DisplayName string `json:"display_name"`
	Specialty   string `json:"specialty"` // doctors only
}

func (h *Handler) CreateUser(c *gin.Context) {
	var req createUserReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}
	if req.Email == "" || req.Password == "" || req.Captcha == "" || req.DisplayName == "" {
		common.Fail(c, http.StatusBadRequest, 10002, "email, captcha, password and display_name required")
		return
	}
	role := models.Role(req.Role)
	if !role.Valid() {
		common.Fail(c, http.StatusBadRequest, 10005, "role must be patient or doctor")
		return
	}

	// redis verification
	code, err := h.Redis.GetCaptcha(c.Request.Context(), req.Email)
	if err != nil {
		if err == redis.Nil {
			common.Fail(c, http.StatusBadRequest, 10020, "captcha expired or not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "redis error")
		return
	}
	if code != req.Captcha {
		common.Fail(c, http.StatusBadRequest, 10021, "invalid captcha")
		return
	}
	_ = h.Redis.DeleteCaptcha(c.Request.Context(), req.Email)

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20002, "failed to hash password")
		return
	}

	// generate username to avoid conflict
	var username string
	for i := 0; i < 5; i++ {
		u, err := randomUsername11()
		if err != nil {
			common.Fail(c, http.StatusInternalServerError, 20004, "failed to generate username")
			return
		}

		var cnt int64
		if err := h.DB.Model(&models.User{}).Where("username = ?", u).Count(&cnt).Error; err != nil {
			common.Fail(c, http.StatusInternalServerError, 20005, "failed to check username")
			return
		}
		if cnt == 0 {
			username = u
			break
		}
	}
	if username == "" {
		common.Fail(c, http.StatusInternalServerError, 20006, "failed to allocate username")
		return
	}

	// user + role profile in one transaction; a user without its profile row
	// would be unresolvable by the identity resolver.
	user := models.User{
		Email:        req.Email,
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		DisplayName:  req.DisplayName,
	}
	err = h.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if role == models.RolePatient {
			return tx.Create(&models.PatientProfile{UserID: user.ID}).Error
		}
		return tx.Create(&models.DoctorProfile{UserID: user.ID, Specialty: req.Specialty}).Error
	})
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "failed to create user (maybe email already exists)")
		return
	}

	// sign token
	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	h.enqueueNotification(c.Request.Context(), &user,
		"Welcome to HealthLink — Your account is ready",
		"Hello "+user.DisplayName+",\n\n"+
			"Welcome to HealthLink. Your account has been successfully created.\n\n"+
			"Username: "+user.Username+"\n\n"+
			"If you did not request this account, please contact our support immediately.\n\n"+
			"Best regards,\nHealthLink\n")

	common.OK(c, gin.H{
		"id":       user.ID,
		"email":    user.Email,
		"username": user.Username,
		"role":     user.Role,
		"token":    token,
	})
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	var user models.User
	if err := h.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusUnauthorized, 40102, "invalid email or password")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		common.Fail(c, http.StatusUnauthorized, 40102, "invalid email or password")
		return
	}

	token, err := auth.SignJWT(user.ID, h.Cfg.JWTSecret, 24*time.Hour)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20003, "failed to sign token")
		return
	}

	common.OK(c, gin.H{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
		"token": token,
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	ident, err := h.Ids.Resolve(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	common.OK(c, gin.H{
		"id":           ident.UserID,
		"role":         ident.Role,
		"profile_id":   ident.ProfileID,
		"display_name": ident.DisplayName,
	})
}

// ListDoctors is the directory patients browse before booking.
func (h *Handler) ListDoctors(c *gin.Context) {
	type doctorRow struct {
		ProfileID   uint64 `json:"profile_id"`
		UserID      uint64 `json:"user_id"`
		DisplayName string `json:"display_name"`
		Specialty   string `json:"specialty"`
	}

	var rows []doctorRow
	err := h.DB.Model(&models.DoctorProfile{}).
		Select("doctor_profiles.id AS profile_id, users.id AS user_id, users.display_name, doctor_profiles.specialty").
		Joins("JOIN users ON users.id = doctor_profiles.user_id").
		Order("users.display_name ASC").
		Scan(&rows).Error
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 20001, "db error")
		return
	}

	common.OK(c, gin.H{"doctors": rows})
}
