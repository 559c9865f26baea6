package nlp

import "github.com/pauubach/narrassist/internal/types"

// GenderNumber pairs a lexicon entry with its grammatical features.
type GenderNumber struct {
	Gender types.Gender
	Number types.Number
}

// Pronouns is the closed lexicon of Spanish personal pronouns relevant
// to narrative coreference: third-person subject and object forms plus
// yo, tú and usted.
var Pronouns = map[string]GenderNumber{
	"él":    {types.GenderMasculine, types.NumberSingular},
	"ella":  {types.GenderFeminine, types.NumberSingular},
	"ellos": {types.GenderMasculine, types.NumberPlural},
	"ellas": {types.GenderFeminine, types.NumberPlural},
	"le":    {types.GenderUnknown, types.NumberSingular},
	"les":   {types.GenderUnknown, types.NumberPlural},
	"lo":    {types.GenderMasculine, types.NumberSingular},
	"la":    {types.GenderFeminine, types.NumberSingular},
	"los":   {types.GenderMasculine, types.NumberPlural},
	"las":   {types.GenderFeminine, types.NumberPlural},
	"yo":    {types.GenderUnknown, types.NumberSingular},
	"tú":    {types.GenderUnknown, types.NumberSingular},
	"usted": {types.GenderUnknown, types.NumberSingular},
}

// FirstPersonPronouns marks the forms bound to the narrator outside
// dialogue.
var FirstPersonPronouns = map[string]bool{
	"yo": true, "me": true, "mí": true, "conmigo": true,
}

// Demonstratives is the closed demonstrative lexicon.
var Demonstratives = map[string]GenderNumber{
	"éste":     {types.GenderMasculine, types.NumberSingular},
	"ésta":     {types.GenderFeminine, types.NumberSingular},
	"éstos":    {types.GenderMasculine, types.NumberPlural},
	"éstas":    {types.GenderFeminine, types.NumberPlural},
	"ése":      {types.GenderMasculine, types.NumberSingular},
	"ésa":      {types.GenderFeminine, types.NumberSingular},
	"aquél":    {types.GenderMasculine, types.NumberSingular},
	"aquélla":  {types.GenderFeminine, types.NumberSingular},
	"aquéllos": {types.GenderMasculine, types.NumberPlural},
	"aquéllas": {types.GenderFeminine, types.NumberPlural},
	"este":     {types.GenderMasculine, types.NumberSingular},
	"esta":     {types.GenderFeminine, types.NumberSingular},
	"ese":      {types.GenderMasculine, types.NumberSingular},
	"esa":      {types.GenderFeminine, types.NumberSingular},
	"aquel":    {types.GenderMasculine, types.NumberSingular},
	"aquella":  {types.GenderFeminine, types.NumberSingular},
}

// Possessives is the closed possessive lexicon. Possessives are a
// distinct mention type, never folded into pronouns.
var Possessives = map[string]GenderNumber{
	"su":       {types.GenderUnknown, types.NumberSingular},
	"sus":      {types.GenderUnknown, types.NumberPlural},
	"mi":       {types.GenderUnknown, types.NumberSingular},
	"mis":      {types.GenderUnknown, types.NumberPlural},
	"tu":       {types.GenderUnknown, types.NumberSingular},
	"tus":      {types.GenderUnknown, types.NumberPlural},
	"nuestro":  {types.GenderMasculine, types.NumberSingular},
	"nuestra":  {types.GenderFeminine, types.NumberSingular},
	"nuestros": {types.GenderMasculine, types.NumberPlural},
	"nuestras": {types.GenderFeminine, types.NumberPlural},
	"suyo":     {types.GenderMasculine, types.NumberSingular},
	"suya":     {types.GenderFeminine, types.NumberSingular},
}

// DefiniteArticles maps article forms to their features.
var DefiniteArticles = map[string]GenderNumber{
	"el":  {types.GenderMasculine, types.NumberSingular},
	"la":  {types.GenderFeminine, types.NumberSingular},
	"los": {types.GenderMasculine, types.NumberPlural},
	"las": {types.GenderFeminine, types.NumberPlural},
}

// PersonNounsMasculine are person-denoting head lemmas that are
// exclusively masculine.
var PersonNounsMasculine = map[string]bool{
	"hombre": true, "chico": true, "niño": true, "señor": true,
	"padre": true, "abuelo": true, "hijo": true, "hermano": true,
	"tío": true, "sobrino": true, "marido": true, "esposo": true,
	"muchacho": true, "caballero": true,
	"anciano": true, "viejo": true, "conductor": true, "profesor": true,
	"doctor": true, "maestro": true, "vecino": true, "amigo": true,
	"rey": true, "príncipe": true, "soldado": true, "capitán": true,
	"cura": true, "sacerdote": true, "camarero": true, "médico": true,
}

// PersonNounsFeminine are person-denoting head lemmas that are
// exclusively feminine.
var PersonNounsFeminine = map[string]bool{
	"mujer": true, "chica": true, "niña": true, "señora": true,
	"madre": true, "abuela": true, "hija": true, "hermana": true,
	"tía": true, "sobrina": true, "esposa": true, "muchacha": true,
	"dama": true, "anciana": true, "vieja": true, "conductora": true,
	"profesora": true, "doctora": true, "maestra": true, "vecina": true,
	"amiga": true, "reina": true, "princesa": true, "enfermera": true,
	"camarera": true, "señorita": true, "monja": true,
}

// PersonNounsCommon are person-denoting lemmas whose gender comes from
// the article (estudiante, colega, joven, ...).
var PersonNounsCommon = map[string]bool{
	"estudiante": true, "colega": true, "joven": true, "periodista": true,
	"artista": true, "agente": true, "paciente": true, "testigo": true,
	"guía": true, "detective": true, "cónyuge": true, "persona": true,
}

// IsPersonNoun reports whether a lemma denotes a person.
func IsPersonNoun(lemma string) bool {
	return PersonNounsMasculine[lemma] || PersonNounsFeminine[lemma] || PersonNounsCommon[lemma]
}

// greetingStarters open salutation phrases that NER mislabels as names.
var greetingStarters = map[string]bool{
	"hola": true, "adiós": true, "buenos": true, "buenas": true,
	"hey": true, "oye": true,
}

// verbIndicators are clitics and frequent narrative verbs whose
// presence inside a multi-word span signals a sentence fragment, not
// an entity.
var verbIndicators = map[string]bool{
	"se": true, "me": true, "te": true, "le": true, "lo": true,
	"la": true, "nos": true, "os": true, "les": true,
	"dijo": true, "respondió": true, "preguntó": true, "miró": true,
	"vio": true, "saludó": true, "entró": true, "salió": true,
	"llegó": true, "fue": true, "era": true, "estaba": true,
	"tenía": true, "había": true, "hizo": true, "quería": true,
	"podía": true, "sabía": true, "acercó": true,
}

// FeminineNames and MasculineNames back the name-dictionary gender
// fallback for proper nouns the tagger leaves unresolved.
var FeminineNames = map[string]bool{
	"maría": true, "maria": true, "ana": true, "carmen": true,
	"laura": true, "marta": true, "elena": true, "sara": true,
	"paula": true, "lucía": true, "lucia": true, "sofía": true,
	"sofia": true, "isabel": true, "rosa": true, "pilar": true,
	"teresa": true, "julia": true, "clara": true, "alicia": true,
	"beatriz": true, "andrea": true, "cristina": true, "diana": true,
	"eva": true, "irene": true, "lorena": true, "nuria": true,
	"olga": true, "patricia": true, "raquel": true, "silvia": true,
	"susana": true, "verónica": true, "veronica": true, "virginia": true,
	"inés": true, "ines": true,
}

var MasculineNames = map[string]bool{
	"juan": true, "pedro": true, "carlos": true, "miguel": true,
	"josé": true, "jose": true, "antonio": true, "manuel": true,
	"francisco": true, "david": true, "jorge": true, "pablo": true,
	"andrés": true, "andres": true, "luis": true, "javier": true,
	"sergio": true, "fernando": true, "alejandro": true, "alberto": true,
	"daniel": true, "diego": true, "enrique": true, "felipe": true,
	"gabriel": true, "héctor": true, "hector": true, "ignacio": true,
	"jaime": true, "mario": true, "rafael": true, "ramón": true,
	"ramon": true, "roberto": true, "víctor": true, "victor": true,
}

// NarratorPatterns are the presentation patterns of a self-naming
// first-person narrator; group 1 captures the name.
var NarratorPatterns = []string{
	`(?i)me llamo ([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)`,
	`(?i)mi nombre es ([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)`,
	`(?i)\bsoy ([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)\b`,
	`(?i)me llaman ([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)`,
}

// Fillers are common Spanish conversational fillers tracked by the
// voice profiler.
var Fillers = []string{
	"bueno", "pues", "o sea", "es que", "vale", "en fin", "digamos",
	"vamos", "¿no?", "¿sabes?", "eh", "este", "entonces", "a ver",
}

// FormalMarkers and ColloquialMarkers feed the register classifier.
var FormalMarkers = []string{
	"usted", "ustedes", "no obstante", "asimismo", "por consiguiente",
	"cabe señalar", "sin embargo", "por ende", "a tenor de",
}

var ColloquialMarkers = []string{
	"tío", "tía", "guay", "chaval", "mogollón", "flipar", "currar",
	"vale", "o sea", "en plan", "qué va", "venga",
}

// SubordinateConjunctions approximate subordinate-clause counting.
var SubordinateConjunctions = []string{
	"que", "porque", "aunque", "cuando", "mientras", "si", "como",
	"donde", "para que", "puesto que", "ya que", "a pesar de que",
}
