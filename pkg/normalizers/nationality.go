package normalizers

// Providers disagree on nationality and country spelling: the live timing feed uses
// three-letter codes, the archive uses demonyms, the wiki uses country names.
// Both tables fold every spelling to one key so blocking and scoring compare like with like.

var nationalityAliases = map[string]string{
	"ned": "dutch", "nld": "dutch", "netherlands": "dutch", "holland": "dutch",
	"gbr": "british", "uk": "british", "united-kingdom": "british", "great-britain": "british", "english": "british", "scottish": "british", "welsh": "british",
	"bra": "brazilian", "brazil": "brazilian",
	"ger": "german", "deu": "german", "germany": "german", "west-german": "german",
	"fra": "french", "france": "french",
	"ita": "italian", "italy": "italian",
	"esp": "spanish", "spain": "spanish",
	"fin": "finnish", "finland": "finnish",
	"aut": "austrian", "austria": "austrian",
	"aus": "australian", "australia": "australian",
	"nzl": "new-zealander", "new-zealand": "new-zealander", "kiwi": "new-zealander",
	"usa": "american", "united-states": "american", "us": "american",
	"can": "canadian", "canada": "canadian",
	"mex": "mexican", "mexico": "mexican",
	"arg": "argentine", "argentina": "argentine", "argentinian": "argentine",
	"bel": "belgian", "belgium": "belgian",
	"sui": "swiss", "che": "swiss", "switzerland": "swiss",
	"swe": "swedish", "sweden": "swedish",
	"den": "danish", "dnk": "danish", "denmark": "danish",
	"mon": "monegasque", "mco": "monegasque", "monaco": "monegasque",
	"jpn": "japanese", "japan": "japanese",
	"chn": "chinese", "china": "chinese",
	"tha": "thai", "thailand": "thai",
	"rsa": "south-african", "zaf": "south-african", "south-africa": "south-african",
	"pol": "polish", "poland": "polish",
	"rus": "russian", "russia": "russian",
	"por": "portuguese", "prt": "portuguese", "portugal": "portuguese",
	"col": "colombian", "colombia": "colombian",
	"ven": "venezuelan", "venezuela": "venezuelan",
}

var countryAliases = map[string]string{
	"uk": "united-kingdom", "gbr": "united-kingdom", "great-britain": "united-kingdom", "britain": "united-kingdom", "england": "united-kingdom",
	"usa": "united-states", "us": "united-states", "united-states-of-america": "united-states",
	"uae": "united-arab-emirates", "are": "united-arab-emirates",
	"ned": "netherlands", "nld": "netherlands", "holland": "netherlands",
	"ger": "germany", "deu": "germany",
	"ita": "italy", "fra": "france", "esp": "spain", "bra": "brazil", "bel": "belgium",
	"aut": "austria", "aus": "australia", "jpn": "japan", "chn": "china", "mex": "mexico",
	"can": "canada", "mon": "monaco", "mco": "monaco", "hun": "hungary", "sgp": "singapore",
	"ksa": "saudi-arabia", "sau": "saudi-arabia", "bhr": "bahrain", "qat": "qatar", "aze": "azerbaijan",
	"por": "portugal", "prt": "portugal", "rsa": "south-africa", "zaf": "south-africa", "arg": "argentina",
	"sui": "switzerland", "che": "switzerland", "swe": "sweden", "kor": "south-korea", "korea": "south-korea",
}

// Nationality folds a nationality, demonym or country code onto a single key
func Nationality(s string) string {
	key := Slugify(s)
	if canonical, ok := nationalityAliases[key]; ok {
		return canonical
	}
	return key
}

// Country folds a country name or code onto a single key
func Country(s string) string {
	key := Slugify(s)
	if canonical, ok := countryAliases[key]; ok {
		return canonical
	}
	return key
}
