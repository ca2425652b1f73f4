package service

import (
	"fmt"
	"strings"

	"ai-chatroom/internal/llm"
)

// Prefijos del comando de persona, en orden de evaluación.
var personaCommandPrefixes = []string{"/角色 ", "/role "}

// Textos visibles para los usuarios de la sala.
const (
	personaTemplate      = "你現在扮演：%s。請以%s回應，並保持該角色風格直到被更改。"
	personaNoticeFormat  = "🛠️ 房間角色已設定為：%s"
	personaRecordFormat  = "角色設定：%s"
	joinNoticeFormat     = "%s 已加入房間"
	CompletionFallback   = "⚠️ AI 回覆失敗，可能是 API Key 或配額問題。"
	CompletionNoReply    = "（AI 未回覆）"
	defaultPersonaLocale = "中文"
)

// ParsePersonaCommand reconoce "/角色 <texto>" y "/role <texto>". Un comando
// sin argumento no es un comando: ok es false y el texto se trata como mensaje.
func ParsePersonaCommand(text string) (roleText string, ok bool) {
	trimmed := strings.TrimSpace(text)
	for _, prefix := range personaCommandPrefixes {
		if !strings.HasPrefix(trimmed, prefix) {
			continue
		}
		_, rest, _ := strings.Cut(trimmed, " ")
		rest = strings.TrimSpace(rest)
		if rest == "" {
			return "", false
		}
		return rest, true
	}
	return "", false
}

// BuildPersonaDirective arma la instrucción de sistema para roleText.
func BuildPersonaDirective(roleText, language string) string {
	if strings.TrimSpace(language) == "" {
		language = defaultPersonaLocale
	}
	return fmt.Sprintf(personaTemplate, roleText, language)
}

// BuildCompletionRequest arma la petición sin estado: persona opcional y el
// texto del usuario como único turno.
func BuildCompletionRequest(persona, text string) []llm.ChatMessage {
	msgs := make([]llm.ChatMessage, 0, 2)
	if persona != "" {
		msgs = append(msgs, llm.ChatMessage{Role: llm.RoleSystem, Content: persona})
	}
	return append(msgs, llm.ChatMessage{Role: llm.RoleUser, Content: text})
}
