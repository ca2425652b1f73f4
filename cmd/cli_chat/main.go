package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"ai-chatroom/internal/domain"
)

// Cliente de terminal para probar una sala sin navegador.
func main() {
	_ = godotenv.Load()
	reader := bufio.NewReader(os.Stdin)

	url := os.Getenv("CHAT_SERVER_URL")
	if url == "" {
		url = "ws://localhost:3000/socket"
	}

	room := prompt(reader, "Sala [lobby]: ")
	if room == "" {
		room = "lobby"
	}
	user := ""
	for user == "" {
		user = prompt(reader, "Usuario: ")
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Fatalf("conectar %s: %v", url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	go readLoop(conn, done)

	if err := send(conn, domain.EventJoin, domain.JoinPayload{Room: room, User: user}); err != nil {
		log.Fatalf("join: %v", err)
	}

	fmt.Println("---- Modo Chat (escribe 'salir' para terminar, '/role <texto>' para cambiar el rol) ----")
	for {
		text, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		if strings.EqualFold(text, "salir") {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			<-done
			return
		}
		if err := send(conn, domain.EventChatMessage, domain.ChatPayload{Room: room, User: user, Text: text}); err != nil {
			log.Printf("enviar: %v", err)
			return
		}
		select {
		case <-done:
			fmt.Println("conexión cerrada por el servidor")
			return
		default:
		}
	}
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func send(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(frame{Event: event, Data: data})
}

func readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		printFrame(f)
	}
}

func printFrame(f frame) {
	switch f.Event {
	case domain.EventHistory:
		var history []domain.Message
		if err := json.Unmarshal(f.Data, &history); err == nil {
			fmt.Printf("---- historial (%d) ----\n", len(history))
			for _, m := range history {
				printMessage(m)
			}
			fmt.Println("------------------------")
		}
	case domain.EventChatMessage:
		var m domain.Message
		if err := json.Unmarshal(f.Data, &m); err == nil {
			printMessage(m)
		}
	case domain.EventSystem:
		var n domain.SystemNotice
		if err := json.Unmarshal(f.Data, &n); err == nil {
			fmt.Printf("* %s\n", n.Text)
		}
	case domain.EventMembers:
		var p domain.MembersPayload
		if err := json.Unmarshal(f.Data, &p); err == nil {
			fmt.Printf("* en línea: %s\n", strings.Join(p.Users, ", "))
		}
	}
}

func printMessage(m domain.Message) {
	fmt.Printf("[%s] %s > %s\n", m.Timestamp.Local().Format("15:04:05"), m.User, m.Text)
}
