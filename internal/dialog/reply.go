package dialog

import (
	"fmt"
	"strings"
)

// Button is one inline keyboard button: a visible label and the callback
// payload it fires.
type Button struct {
	Label string
	Data  string
}

// Reply is one outbound action for the transport shell to render. Edit
// replaces the prompt that carried the pressed button; otherwise a new
// message is sent.
type Reply struct {
	Edit     bool
	Text     string
	Keyboard [][]Button
}

func editReply(text string, keyboard [][]Button) Reply {
	return Reply{Edit: true, Text: text, Keyboard: keyboard}
}

func newReply(text string, keyboard [][]Button) Reply {
	return Reply{Text: text, Keyboard: keyboard}
}

func mainMenuKeyboard() [][]Button {
	return [][]Button{{
		{Label: "AVALIAR ELEGIBILIDADE", Data: payloadMenuElig},
		{Label: "FAZER AGENDAMENTO", Data: payloadMenuSched},
	}}
}

func yesNoKeyboard(questionKey string) [][]Button {
	return [][]Button{{
		{Label: "Sim", Data: eligPayload(questionKey, true)},
		{Label: "Não", Data: eligPayload(questionKey, false)},
	}}
}

func confirmKeyboard() [][]Button {
	return [][]Button{{
		{Label: "CONFIRMAR", Data: payloadConfirmYes},
		{Label: "CANCELAR", Data: payloadConfirmNo},
	}}
}

// slotKeyboard renders one button per open slot plus a cancel row.
func slotKeyboard(slots []Slot) [][]Button {
	rows := make([][]Button, 0, len(slots)+1)
	for _, s := range slots {
		rows = append(rows, []Button{{Label: s.Label, Data: slotPayload(s.Row, s.Col)}})
	}
	rows = append(rows, []Button{{Label: "CANCELAR", Data: payloadSlotCancel}})
	return rows
}

// renderSummary builds the confirmation summary shown before booking.
func renderSummary(answers map[string]string) string {
	var b strings.Builder
	b.WriteString("📝 CONFIRMAR SOLICITAÇÃO\n\n")
	fmt.Fprintf(&b, "Paciente: %s\n", answers["nome_paciente"])
	fmt.Fprintf(&b, "Prontuário: %s\n", answers["prontuario"])
	fmt.Fprintf(&b, "Cirurgião: %s\n", answers["nome_cirurgiao"])
	fmt.Fprintf(&b, "Cirurgia proposta: %s\n", answers["cirurgia_proposta"])
	fmt.Fprintf(&b, "Data prevista: %s\n", answers[ExpectedDateField])
	fmt.Fprintf(&b, "Observações: %s\n\n", answers["observacoes"])
	b.WriteString("Deseja confirmar o envio para o ambulatório de Geriatria Perioperatória?")
	return b.String()
}

// renderBookingText builds the summary written into the claimed slot cell.
// It is frozen into the session at confirmation time.
func renderBookingText(answers map[string]string) string {
	return fmt.Sprintf("%s | Pront: %s | %s | Dr(a). %s | Prev: %s | Obs: %s",
		answers["nome_paciente"],
		answers["prontuario"],
		answers["cirurgia_proposta"],
		answers["nome_cirurgiao"],
		answers[ExpectedDateField],
		answers["observacoes"],
	)
}
