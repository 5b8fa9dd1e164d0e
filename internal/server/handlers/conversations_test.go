package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ichat-sync/internal/mocks"
	"ichat-sync/internal/models"
)

func setupConversationRouter(handler *ConversationHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set("userID", "alice")
		c.Next()
	})
	r.GET("/conversations", handler.List)
	r.POST("/chats/start", handler.StartChat)
	r.POST("/groups", handler.CreateGroup)
	return r
}

func TestListConversationsSuccess(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, "alice").Return([]models.ConversationSummary{
		{Ref: models.ChatRef("c1"), MemberIDs: []string{"alice", "bob"}},
	}, nil).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []models.ConversationSummary
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp, 1)
	assert.Equal(t, models.ChatRef("c1"), resp[0].Ref)
	convRepo.AssertExpectations(t)
}

func TestListConversationsRepoError(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo)
	router := setupConversationRouter(handler)

	convRepo.On("ListForUser", mock.Anything, "alice").
		Return(([]models.ConversationSummary)(nil), assert.AnError).Once()

	req := httptest.NewRequest(http.MethodGet, "/conversations", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	convRepo.AssertExpectations(t)
}

func TestStartChatWithSelfRejected(t *testing.T) {
	handler := NewConversationHandler(new(mocks.ConversationRepositoryMock))
	router := setupConversationRouter(handler)

	req := httptest.NewRequest(http.MethodPost, "/chats/start", bytes.NewBufferString(`{"friend_id":"alice"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateGroupAddsCaller(t *testing.T) {
	convRepo := new(mocks.ConversationRepositoryMock)
	handler := NewConversationHandler(convRepo)
	router := setupConversationRouter(handler)

	convRepo.On("CreateGroup", mock.Anything, "team", []string{"bob", "carol", "alice"}).
		Return(models.ConversationSummary{Ref: models.GroupRef("g1"), Name: "team"}, nil).Once()

	body := bytes.NewBufferString(`{"name":"team","member_ids":["bob","carol"]}`)
	req := httptest.NewRequest(http.MethodPost, "/groups", body)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	convRepo.AssertExpectations(t)
}
