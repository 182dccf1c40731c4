package printer

import (
	"strings"

	"github.com/goodsign/monday"
)

var mondayLocales = map[string]monday.Locale{
	"en":    monday.LocaleEnUS,
	"en_us": monday.LocaleEnUS,
	"en_gb": monday.LocaleEnGB,
	"de":    monday.LocaleDeDE,
	"de_de": monday.LocaleDeDE,
	"fr":    monday.LocaleFrFR,
	"fr_fr": monday.LocaleFrFR,
	"fr_ca": monday.LocaleFrCA,
	"es":    monday.LocaleEsES,
	"es_es": monday.LocaleEsES,
	"it":    monday.LocaleItIT,
	"it_it": monday.LocaleItIT,
	"pt":    monday.LocalePtPT,
	"pt_pt": monday.LocalePtPT,
	"pt_br": monday.LocalePtBR,
	"nl":    monday.LocaleNlNL,
	"nl_nl": monday.LocaleNlNL,
	"ru":    monday.LocaleRuRU,
	"pl":    monday.LocalePlPL,
	"sv":    monday.LocaleSvSE,
	"da":    monday.LocaleDaDK,
	"fi":    monday.LocaleFiFI,
	"ja":    monday.LocaleJaJP,
	"ja_jp": monday.LocaleJaJP,
	"zh":    monday.LocaleZhCN,
	"zh_cn": monday.LocaleZhCN,
	"zh_tw": monday.LocaleZhTW,
	"ko":    monday.LocaleKoKR,
}

// mondayLocale maps "en_GB", "en-GB" or "en" to a date locale, trying the
// language alone when the region is unknown.
func mondayLocale(locale string) monday.Locale {
	key := strings.ToLower(strings.ReplaceAll(locale, "-", "_"))
	if loc, ok := mondayLocales[key]; ok {
		return loc
	}
	if lang, _, found := strings.Cut(key, "_"); found {
		if loc, ok := mondayLocales[lang]; ok {
			return loc
		}
	}
	return monday.LocaleEnUS
}

// dateLayout is the medium date style for a locale.
func dateLayout(loc monday.Locale) string {
	switch loc {
	case monday.LocaleEnUS:
		return "Jan 2, 2006"
	case monday.LocaleDeDE:
		return "2. Jan. 2006"
	case monday.LocaleJaJP, monday.LocaleZhCN, monday.LocaleZhTW, monday.LocaleKoKR:
		return "2006/01/02"
	default:
		return "2 Jan 2006"
	}
}
