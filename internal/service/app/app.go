package app

import (
	"chat_relay/internal/model"
	"chat_relay/internal/utils/log"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gdamore/tcell/v2"
	"github.com/gorilla/websocket"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

type (
	// App is a debug chat client: one chat pane, one online pane, one input.
	App struct {
		app     *tview.Application
		chatbox *tview.TextView
		online  *tview.TextView
		input   *tview.InputField

		toID string

		conn *websocket.Conn
	}
)

func NewApp() *App {
	return &App{
		app: tview.NewApplication(),
	}
}

// Run dials the relay with the credential token as a cookie and renders the
// UI until the user quits or the connection drops.
func (c *App) Run(serverURL, token, toID string) {
	c.toID = toID

	header := http.Header{}
	header.Set("Cookie", "token="+token)

	conn, _, err := websocket.DefaultDialer.Dial(serverURL, header)
	if err != nil {
		log.Fatal("dial relay failed", zap.Error(err))
	}
	c.conn = conn

	go c.listen()
	c.renderUI()
}

// Stop may run before Run has dialed, so the connection can still be nil.
func (c *App) Stop() {
	if c.conn != nil {
		c.conn.Close()
	}
	c.app.Stop()
}

// blocking function
func (c *App) renderUI() {
	c.chatbox = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	c.chatbox.SetBorder(true).SetTitle(fmt.Sprintf(" Chat with %s ", c.toID))

	c.online = tview.NewTextView().
		SetDynamicColors(true)
	c.online.SetBorder(true).SetTitle(" Online ")

	c.input = tview.NewInputField().
		SetLabel("Message: ").
		SetFieldWidth(0)
	c.input.SetBorder(true).SetTitle(" New Message ")

	c.input.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			text := c.input.GetText()
			if text == "" {
				return
			}

			go func(msg string) {
				if err := c.SendMessage(msg); err != nil {
					c.app.Suspend(func() {
						log.Error("send message failed", zap.Error(err))
					})
				}
			}(text)
		}
	})

	layout := tview.NewFlex().
		SetDirection(tview.FlexColumn).
		AddItem(tview.NewFlex().
			SetDirection(tview.FlexRow).
			AddItem(c.chatbox, 0, 1, false).
			AddItem(c.input, 3, 0, true), 0, 3, true).
		AddItem(c.online, 0, 1, false)

	if err := c.app.SetRoot(layout, true).SetFocus(c.input).Run(); err != nil {
		log.Fatal("cannot init app", zap.Error(err))
	}
}

// serverFrame covers both frame shapes the relay pushes: presence updates
// carry Online, deliveries carry the message fields.
type serverFrame struct {
	Online []model.PresenceEntry `json:"online"`

	ID     string `json:"_id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	File   string `json:"file"`
}

func (c *App) listen() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			log.Debug("worker web socket closed", zap.Error(err))
			c.conn.Close()
			break
		}

		var frame serverFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Error("unmarshal frame failed", zap.Error(err))
			continue
		}

		if frame.Online != nil {
			c.showPresence(frame.Online)
			continue
		}
		if frame.ID != "" {
			c.showDelivery(&frame)
		}
	}
}

func (c *App) SendMessage(msg string) error {
	err := c.conn.WriteJSON(&model.MessageEnvelope{
		Recipient: c.toID,
		Text:      msg,
	})
	if err != nil {
		return err
	}

	c.app.QueueUpdateDraw(func() {
		fmt.Fprintf(c.chatbox, "[yellow]You:[-] %s\n", msg)
		c.input.SetText("")
		c.chatbox.ScrollToEnd()
	})
	return nil
}

func (c *App) showPresence(online []model.PresenceEntry) {
	c.app.QueueUpdateDraw(func() {
		c.online.Clear()
		for _, entry := range online {
			fmt.Fprintf(c.online, "[green]%s[-] (%s)\n", entry.Username, entry.UserID)
		}
	})
}

func (c *App) showDelivery(frame *serverFrame) {
	c.app.QueueUpdateDraw(func() {
		if frame.Text != "" {
			fmt.Fprintf(c.chatbox, "[green]%s:[-] %s\n", frame.Sender, frame.Text)
		}
		if frame.File != "" {
			fmt.Fprintf(c.chatbox, "[green]%s:[-] sent a file: %s\n", frame.Sender, frame.File)
		}
		c.chatbox.ScrollToEnd()
	})
}
