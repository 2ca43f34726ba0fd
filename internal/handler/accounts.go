package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xenking/fishnet/internal/domain/auth"
)

// accountView is the public representation of an account. The password hash
// never leaves the service.
type accountView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Role          auth.Role `json:"role"`
	StreetAddress string    `json:"street_address"`
	City          string    `json:"city"`
	State         string    `json:"state,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	CPF           string    `json:"cpf,omitempty"`
	CNPJ          string    `json:"cnpj,omitempty"`
	Picture       string    `json:"picture,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func viewAccount(a *auth.Account) accountView {
	return accountView{
		ID:            a.ID,
		Name:          a.Name,
		Email:         a.Email,
		Role:          a.Role,
		StreetAddress: a.StreetAddress,
		City:          a.City,
		State:         a.State,
		Phone:         a.Phone,
		CPF:           a.CPF,
		CNPJ:          a.CNPJ,
		Picture:       a.Picture,
		CreatedAt:     a.CreatedAt.UTC(),
	}
}

type sessionView struct {
	Token   string      `json:"token"`
	Role    auth.Role   `json:"role"`
	Account accountView `json:"account"`
}

func viewSession(s *auth.Session) sessionView {
	return sessionView{Token: s.Token, Role: s.Account.Role, Account: viewAccount(s.Account)}
}

func (h *Handler) register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	s, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewSession(s))
}

func (h *Handler) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	s, err := h.accounts.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewSession(s))
}

func (h *Handler) check(c *gin.Context) {
	a, err := h.accounts.Check(c.Request.Context(), claimsFrom(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(a))
}

func (h *Handler) changePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := bind(c, &req); err != nil {
		fail(c, err)
		return
	}
	err := h.accounts.ChangePassword(c.Request.Context(), claimsFrom(c).AccountID(), req.OldPassword, req.NewPassword)
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listUsers(c *gin.Context) {
	accounts, err := h.accounts.List(c.Request.Context(), auth.Role(c.Query("role")))
	if err != nil {
		fail(c, err)
		return
	}
	views := make([]accountView, len(accounts))
	for i := range accounts {
		views[i] = viewAccount(&accounts[i])
	}
	c.JSON(http.StatusOK, views)
}

func (h *Handler) getUser(c *gin.Context) {
	a, err := h.accounts.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(a))
}

func (h *Handler) updateUser(c *gin.Context) {
	var upd auth.AccountUpdate
	if err := bind(c, &upd); err != nil {
		fail(c, err)
		return
	}
	a, err := h.accounts.Update(c.Request.Context(), c.Param("id"), upd)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, viewAccount(a))
}

func (h *Handler) deleteUser(c *gin.Context) {
	if err := h.accounts.Delete(c.Request.Context(), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
