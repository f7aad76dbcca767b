package equipment

import (
	"strings"
	"unicode/utf8"
)

// rule assigns a category when any keyword occurs in the folded item text.
type rule struct {
	category Category
	keywords []string
}

// rules are evaluated in order; the first match wins. Assistance comes
// before safety and lighting so "Notbremsassistent" and
// "Fernlichtassistent" land in assistance.
var rules = []rule{
	{Assistance, []string{
		"assistent", "assist", "tempomat", "abstandsregel", "acc", "adaptive cruise", "cruise control",
		"spurhalte", "lane keep", "lane departure", "totwinkel", "toter winkel", "blind spot",
		"einparkhilfe", "parkpilot", "park distance", "pdc", "parksensor", "parking sensor",
		"rückfahrkamera", "rueckfahrkamera", "reversing camera", "rear view camera", "360°", "360 grad",
		"verkehrszeichenerkennung", "traffic sign", "head up", "müdigkeitserkennung",
		"driver alert", "autopilot", "pilot assist",
	}},
	{Safety, []string{
		"airbag", "abs", "esp", "asr", "isofix", "notbrems", "emergency brake", "bremsassistent",
		"reifendruck", "tire pressure", "tyre pressure", "rdks", "tpms", "wegfahrsperre", "immobilizer",
		"alarmanlage", "alarm", "gurtstraffer", "seatbelt", "seat belt", "stabilitätskontrolle",
		"traction control", "kopfstütze", "notruf", "ecall",
	}},
	{Lighting, []string{
		"scheinwerfer", "headlight", "headlamp", "xenon", "led", "laserlicht", "laser light", "matrix",
		"nebelscheinwerfer", "nebelleuchte", "fog light", "fog lamp", "tagfahrlicht", "daytime running",
		"kurvenlicht", "cornering light", "lichtsensor", "light sensor", "ambientebeleuchtung",
		"ambient light", "rückleuchte", "rueckleuchte", "tail light",
	}},
	{Infotainment, []string{
		"navi", "radio", "dab", "bluetooth", "apple carplay", "carplay", "android auto", "usb",
		"soundsystem", "sound system", "lautsprecher", "speaker", "harman", "bose", "burmester",
		"bang & olufsen", "touchscreen", "display", "multimedia", "infotainment", "wlan", "wifi",
		"hotspot", "internet", "freisprech", "hands free", "handsfree", "smartphone", "induktiv",
		"wireless charging", "cd", "mp3", "tv",
	}},
	{Comfort, []string{
		"klima", "air condition", "a c", "sitzheizung", "heated seat", "seat heating", "lenkradheizung",
		"heated steering", "standheizung", "auxiliary heating", "keyless", "komfortzugang",
		"elektrische fensterheber", "fensterheber", "power window", "zentralverriegelung",
		"central locking", "sitzbelüftung", "ventilated seat", "massage", "memory", "elektr. sitz",
		"elektrisch verstellbar", "power seat", "regensensor", "rain sensor", "heckklappe elektrisch",
		"power tailgate", "start stop", "servolenkung", "power steering",
		"schiebedach", "sunroof", "panoramadach", "panoramic roof", "standklima",
	}},
	{Performance, []string{
		"sportfahrwerk", "sport suspension", "luftfederung", "air suspension", "adaptives fahrwerk",
		"adaptive suspension", "sportpaket", "sport package", "m paket", "m sport", "amg", "s line",
		"rs", "gti", "allrad", "4matic", "quattro", "xdrive", "4motion", "awd", "4x4", "turbo",
		"sportauspuff", "sport exhaust", "sportsitz", "sport seat", "schaltwippen", "paddle shift",
		"launch control", "differential", "sperre", "keramikbremse", "ceramic brake", "sport chrono",
	}},
	{Interior, []string{
		"leder", "leather", "alcantara", "stoff", "cloth", "velours", "innenraum", "interieur",
		"interior", "dachhimmel", "headliner", "fussmatten", "floor mats",
		"mittelarmlehne", "armrest", "holz", "wood trim", "zierleisten", "lenkrad", "steering wheel",
		"rücksitzbank", "ruecksitzbank", "rear seat", "ablage", "cupholder", "getränkehalter",
	}},
	{Exterior, []string{
		"alufelgen", "leichtmetallfelgen", "alloy wheels", "felgen", "rims", "wheels", "zoll",
		"dachreling", "roof rails", "anhängerkupplung", "anhaengerkupplung", "tow bar", "towbar",
		"trailer hitch", "metallic", "lackierung", "paint", "spoiler", "getönte scheiben",
		"privacy glass", "tinted", "aussenspiegel", "mirror", "chrom", "chrome",
		"stossfänger", "bumper", "karosserie", "bodykit", "body kit", "schweller",
	}},
}

// matchRule returns the category of the first rule with a keyword in the
// folded item. Keywords are written in folded form (ß as ss).
func matchRule(item string) (Category, bool) {
	text := " " + fold(item) + " "
	for _, r := range rules {
		for _, kw := range r.keywords {
			if containsKeyword(text, kw) {
				return r.category, true
			}
		}
	}
	return "", false
}

// containsKeyword matches keywords longer than three runes anywhere, so
// compounds like "notbremsassistent" hit "assistent". Shorter keywords must
// stand alone: "abs" matches "ABS" but not "Abstandsregler".
func containsKeyword(text, kw string) bool {
	if utf8.RuneCountInString(kw) > 3 {
		return strings.Contains(text, kw)
	}
	for i := 0; i < len(text); {
		j := strings.Index(text[i:], kw)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(kw)
		if (start == 0 || isSep(text[start-1])) && (end == len(text) || isSep(text[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func isSep(b byte) bool {
	switch b {
	case ' ', '.', ',', ';', ':', '(', ')', '+', '&', '"', '\'':
		return true
	}
	return false
}
