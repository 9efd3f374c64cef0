package faq

import (
	"context"

	"github.com/d9705996/clientportal/internal/lang"
)

// Action is a suggested next step rendered as a button.
type Action struct {
	Label string `json:"label"`
	Href  string `json:"href"`
}

// Answer is one reply from the FAQ widget.
type Answer struct {
	Intent  Intent   `json:"intent"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
	Actions []Action `json:"actions"`
	Source  string   `json:"source"`
}

// Responder answers a single question. Implementations keep no conversation
// state.
type Responder interface {
	Respond(ctx context.Context, question string, l lang.Lang) (Answer, error)
}

type bundle struct {
	content string
	tags    []string
	actions []Action
}

// RuleResponder returns canned answers selected by Classify.
type RuleResponder struct{}

// NewRuleResponder returns the keyword responder.
func NewRuleResponder() *RuleResponder { return &RuleResponder{} }

func (RuleResponder) Respond(_ context.Context, question string, l lang.Lang) (Answer, error) {
	intent := Classify(question)
	return canned(intent, l), nil
}

func canned(intent Intent, l lang.Lang) Answer {
	byLang, ok := answers[intent]
	if !ok {
		byLang = answers[IntentUnknown]
	}
	b, ok := byLang[l]
	if !ok {
		b = byLang[lang.Default]
	}
	return Answer{Intent: intent, Content: b.content, Tags: b.tags, Actions: b.actions, Source: "rules"}
}

var answers = map[Intent]map[lang.Lang]bundle{
	IntentDocs: {
		lang.French: {
			content: "Prévoyez vos feuillets (T4, T4A, relevés 1), vos reçus de dons et de frais médicaux, vos cotisations REER et votre avis de cotisation de l'an dernier. Vous pouvez les téléverser directement dans votre dossier.",
			tags:    []string{"documents", "feuillets"},
			actions: []Action{{Label: "Téléverser mes documents", Href: "/dossier"}},
		},
		lang.English: {
			content: "Gather your slips (T4, T4A, RL-1), donation and medical receipts, RRSP contribution receipts and last year's notice of assessment. You can upload them straight into your file.",
			tags:    []string{"documents", "slips"},
			actions: []Action{{Label: "Upload my documents", Href: "/dossier"}},
		},
		lang.Spanish: {
			content: "Reúna sus comprobantes (T4, T4A, RL-1), recibos de donaciones y gastos médicos, aportes RRSP y su aviso de tasación del año pasado. Puede subirlos directamente a su expediente.",
			tags:    []string{"documentos"},
			actions: []Action{{Label: "Subir mis documentos", Href: "/dossier"}},
		},
	},
	IntentPricing: {
		lang.French: {
			content: "Un acompte est payable en ligne à l'ouverture du dossier (particulier, travailleur autonome ou société). Le solde est facturé à la fin, selon la complexité du dossier.",
			tags:    []string{"tarifs", "acompte"},
			actions: []Action{{Label: "Voir les tarifs", Href: "/tarifs"}},
		},
		lang.English: {
			content: "A deposit is paid online when the file is opened (personal, self-employed or corporate). The balance is invoiced at the end based on the complexity of the file.",
			tags:    []string{"pricing", "deposit"},
			actions: []Action{{Label: "See pricing", Href: "/tarifs"}},
		},
		lang.Spanish: {
			content: "Se paga un anticipo en línea al abrir el expediente (particular, autónomo o sociedad). El saldo se factura al final según la complejidad del expediente.",
			tags:    []string{"precios", "anticipo"},
			actions: []Action{{Label: "Ver precios", Href: "/tarifs"}},
		},
	},
	IntentDeadline: {
		lang.French: {
			content: "La date limite de production est le 30 avril pour les particuliers et le 15 juin pour les travailleurs autonomes (le solde dû reste exigible au 30 avril). Les sociétés ont six mois après la fin de leur exercice.",
			tags:    []string{"échéances"},
			actions: []Action{{Label: "Ouvrir un dossier", Href: "/commencer"}},
		},
		lang.English: {
			content: "The filing deadline is April 30 for individuals and June 15 for self-employed workers (any balance owing is still due April 30). Corporations have six months after their fiscal year end.",
			tags:    []string{"deadlines"},
			actions: []Action{{Label: "Open a file", Href: "/commencer"}},
		},
		lang.Spanish: {
			content: "La fecha límite es el 30 de abril para particulares y el 15 de junio para autónomos (el saldo adeudado vence el 30 de abril). Las sociedades tienen seis meses tras el cierre de su ejercicio.",
			tags:    []string{"plazos"},
			actions: []Action{{Label: "Abrir un expediente", Href: "/commencer"}},
		},
	},
	IntentProcess: {
		lang.French: {
			content: "1. Créez votre compte. 2. Remplissez le questionnaire. 3. Payez l'acompte. 4. Téléversez vos documents. 5. Nous préparons et transmettons vos déclarations, et vous suivez l'état du dossier en ligne.",
			tags:    []string{"processus"},
			actions: []Action{{Label: "Commencer", Href: "/commencer"}},
		},
		lang.English: {
			content: "1. Create your account. 2. Fill in the questionnaire. 3. Pay the deposit. 4. Upload your documents. 5. We prepare and file your returns while you follow the status online.",
			tags:    []string{"process"},
			actions: []Action{{Label: "Get started", Href: "/commencer"}},
		},
		lang.Spanish: {
			content: "1. Cree su cuenta. 2. Complete el cuestionario. 3. Pague el anticipo. 4. Suba sus documentos. 5. Preparamos y presentamos sus declaraciones y usted sigue el estado en línea.",
			tags:    []string{"proceso"},
			actions: []Action{{Label: "Comenzar", Href: "/commencer"}},
		},
	},
	IntentCaseType: {
		lang.French: {
			content: "T1 : déclaration de particulier. TA : travailleur autonome (revenus d'entreprise personnels). T2 : société incorporée. Choisissez le type qui correspond à votre situation en ouvrant le dossier.",
			tags:    []string{"T1", "TA", "T2"},
			actions: []Action{{Label: "Choisir mon type de dossier", Href: "/commencer"}},
		},
		lang.English: {
			content: "T1: personal return. TA: self-employed (personal business income). T2: incorporated company. Pick the type that matches your situation when you open your file.",
			tags:    []string{"T1", "TA", "T2"},
			actions: []Action{{Label: "Choose my file type", Href: "/commencer"}},
		},
		lang.Spanish: {
			content: "T1: declaración personal. TA: trabajador autónomo (ingresos de negocio personales). T2: sociedad incorporada. Elija el tipo que corresponde a su situación al abrir el expediente.",
			tags:    []string{"T1", "TA", "T2"},
			actions: []Action{{Label: "Elegir mi tipo de expediente", Href: "/commencer"}},
		},
	},
	IntentUnknown: {
		lang.French: {
			content: "Je peux vous renseigner sur les documents à fournir, les tarifs, les échéances, le déroulement et les types de dossiers. Pour une question précise, écrivez-nous.",
			tags:    []string{},
			actions: []Action{{Label: "Nous écrire", Href: "/contact"}},
		},
		lang.English: {
			content: "I can help with required documents, pricing, deadlines, how it works and file types. For anything specific, write to us.",
			tags:    []string{},
			actions: []Action{{Label: "Contact us", Href: "/contact"}},
		},
		lang.Spanish: {
			content: "Puedo ayudarle con los documentos necesarios, precios, plazos, el proceso y los tipos de expediente. Para algo específico, escríbanos.",
			tags:    []string{},
			actions: []Action{{Label: "Escríbanos", Href: "/contact"}},
		},
	},
}
