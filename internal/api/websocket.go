// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/Corphon/StoryReelMCP/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// ProgressWebSocket 推送后台运行的进度更新
// GET /ws/autoruns/:id
// 轮询接口之外的推送通道：连接即收到当前状态，之后每次更新推送一条，
// 运行进入终态后连接关闭
func (h *Handler) ProgressWebSocket(c *gin.Context) {
	workflowID := c.Param("id")

	// 升级前先校验归属，校验失败还能返回普通HTTP错误
	if _, err := h.WorkflowService.GetWorkflow(ownerID(c), workflowID); err != nil {
		h.Response.Error(c, err)
		return
	}

	tracker, exists := h.ProgressService.GetTracker(workflowID)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "没有进行中的后台运行"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket升级失败", map[string]interface{}{
			"workflow_id": workflowID,
			"err":         err.Error(),
		})
		return
	}
	defer conn.Close()

	subscriber := tracker.Subscribe()
	defer tracker.Unsubscribe(subscriber)

	// 丢弃客户端消息，同时感知连接断开
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				conn.Close()
				return
			}
		}
	}()

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case update, ok := <-subscriber:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}
		case <-tracker.Done:
			// 先排空订阅通道里尚未送出的更新（终态快照可能还在队列里）
			for {
				select {
				case update, ok := <-subscriber:
					if !ok {
						return
					}
					conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
					if err := conn.WriteJSON(update); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
			return
		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
