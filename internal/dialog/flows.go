package dialog

// Step is one (key, prompt) pair of a flow. Keys are stable identifiers used
// in callback payloads and audit rows; prompts are the user-facing text.
type Step struct {
	Key    string
	Prompt string
}

// EligQuestions is the ordered eligibility questionnaire. A SIM on any
// question short-circuits into scheduling; NAO on all of them ends the flow.
// Order is the interaction order and never changes at runtime.
var EligQuestions = []Step{
	{Key: "idade80", Prompt: "Paciente ≥ 80 anos?"},
	{Key: "memoria", Prompt: "Paciente tem problemas de memória?\n" +
		"- incapacidade para atividades do dia a dia por questões de memória\n" +
		"- não reconhece familiares\n" +
		"- não sabe dizer qual dia/mês/ano está"},
	{Key: "humor", Prompt: "Paciente tem transtornos de humor?\n" +
		"- uso de antidepressivos\n" +
		"- labilidade emocional importante\n" +
		"- insônia ou alterações de comportamento"},
	{Key: "multimorbidade", Prompt: "Paciente possui 5 ou mais doenças sistêmicas?\n" +
		"Ex: HAS, DM, insuficiência cardíaca, DAC, DRC, doença hepática crônica, AVE"},
	{Key: "polifarmacia", Prompt: "Paciente faz uso de 5 ou mais medicamentos regularmente?"},
	{Key: "fragilidade", Prompt: "Paciente com fragilidade (CFS ≥ 4) OU baixa tolerância a esforço?\n" +
		"Ex: cansa ao andar 1 quadra ou subir 1 lance de escadas (10 degraus), mobilidade reduzida/lentificada"},
}

// SchedFields is the ordered scheduling form. Every field takes free text;
// the expected-date field additionally goes through date validation.
var SchedFields = []Step{
	{Key: "nome_paciente", Prompt: "Nome do paciente:"},
	{Key: "prontuario", Prompt: "Prontuário:"},
	{Key: "nome_cirurgiao", Prompt: "Nome do cirurgião:"},
	{Key: "cirurgia_proposta", Prompt: "Cirurgia proposta:"},
	{Key: ExpectedDateField, Prompt: "Qual a data da cirurgia (ou expectativa aproximada)?"},
	{Key: "observacoes", Prompt: "Observações / Recomendações (se não houver, digite: - )"},
}

// ExpectedDateField is the scheduling field subject to past-date validation.
const ExpectedDateField = "data_cirurgia_prevista"

// Path labels recorded in the audit row.
const (
	PathEligibility = "avaliacao_elegibilidade"
	PathDirect      = "agendamento_direto"
)

// User-facing copy. Kept in one place so the engine reads as pure state
// transitions.
const (
	msgMainMenu       = "Olá! Escolha uma opção:"
	msgMenuShort      = "Menu:"
	msgEligHeader     = "AVALIAR ELEGIBILIDADE"
	msgSchedHeader    = "FAZER AGENDAMENTO"
	msgRestartHint    = "Digite /start para abrir o menu."
	msgRetryInput     = "Não entendi. Tente novamente."
	msgPastDate       = "A data informada já passou. Informe uma data futura ou uma expectativa aproximada."
	msgUseConfirmKeys = "Você já chegou na confirmação. Use os botões abaixo para confirmar ou cancelar."
	msgCancelled      = "Solicitação cancelada."
	msgChooseSlot     = "Escolha um horário disponível para a avaliação:"
	msgNoSlots        = "Não há horários disponíveis no momento.\nOrientar o paciente a procurar o setor de marcação."
	msgSlotTaken      = "⚠️ Esse horário acabou de ser preenchido por outra solicitação. Escolha outro horário."
	msgBooked         = "✅ Solicitação enviada e horário reservado.\n\nOrientar o paciente a procurar o setor de marcação."
	msgNotEligible    = "❌ PACIENTE NÃO ELEGÍVEL pelos critérios do bot.\n\n" +
		"Se ainda houver dúvida clínica, considere discutir o caso com a equipe de geriatria."
	msgEligiblePositive = "✅ Paciente ELEGÍVEL para avaliação geriátrica perioperatória.\n\nCritério positivo: %s\n\n%s\n\n%s"
	msgSheetError       = "⚠️ Erro ao acessar a planilha de horários.\nSua solicitação NÃO foi registrada. Tente novamente mais tarde."
	msgAuditError       = "⚠️ O horário foi reservado, mas houve erro ao registrar a solicitação na planilha.\nAvise o setor de marcação."
)
