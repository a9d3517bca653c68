// Package i18n localizes error details sent to clients.
package i18n

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var (
	supported = []language.Tag{language.English, language.Russian}
	matcher   = language.NewMatcher(supported)
	cat       = catalog.NewBuilder(catalog.Fallback(language.English))
)

var russian = map[string]string{
	"connection already joined":               "соединение уже вошло в чат",
	"connection closed":                       "соединение закрыто",
	"identity no longer exists":               "учётная запись больше не существует",
	"join before moderating":                  "войдите в чат, чтобы модерировать",
	"join before sending":                     "войдите в чат, чтобы отправлять сообщения",
	"identity is banned":                      "учётная запись заблокирована",
	"the owner cannot be moderated":           "владельца нельзя модерировать",
	"you are muted":                           "вам запрещено писать в чат",
	"only the owner can moderate":             "модерировать может только владелец",
	"identity changed during join, try again": "учётная запись изменилась во время входа, попробуйте снова",
	"identity name is required":               "укажите имя",
	"message is empty":                        "сообщение пустое",
	"message is too long":                     "сообщение слишком длинное",
	"target is required":                      "укажите пользователя",
	"unknown command":                         "неизвестная команда",
	"unknown moderation action":               "неизвестное действие модерации",
	"identity not found":                      "пользователь не найден",
	"identity store timed out":                "хранилище не ответило вовремя",
	"identity store unavailable":              "хранилище недоступно",
	"internal error":                          "внутренняя ошибка",
	"invalid badge":                           "недопустимый значок",
	"the owner badge cannot be changed":       "значок владельца нельзя изменить",
	"valid session token required":            "требуется действительный токен сессии",
	"invalid payload":                         "некорректные данные",
	"unknown message type":                    "неизвестный тип сообщения",
	"message too large":                       "сообщение слишком большое",
	"too many messages, slow down":            "слишком много сообщений, подождите",
	"invalid request body":                    "некорректное тело запроса",
	"invalid limit":                           "некорректный лимит",
	"missing authorization header":            "отсутствует заголовок авторизации",
	"invalid authorization header format":     "некорректный формат заголовка авторизации",
	"invalid token":                           "недействительный токен",
	"invalid credentials":                     "неверное имя или пароль",
	"name must be 3 to 20 characters":         "имя должно содержать от 3 до 20 символов",
	"invalid email":                           "некорректный адрес почты",
	"password must be at least 6 characters":  "пароль должен содержать не менее 6 символов",
	"name already taken":                      "имя уже занято",
	"email already registered":                "адрес почты уже зарегистрирован",
	"name is banned":                          "это имя заблокировано",
	"internal server error":                   "внутренняя ошибка сервера",
}

func init() {
	for key, text := range russian {
		if err := cat.SetString(language.Russian, key, text); err != nil {
			panic(err)
		}
	}
}

// Match picks the best supported language for the given preferences, each either
// an Accept-Language header or a bare tag. Empty values are ignored.
func Match(prefs ...string) language.Tag {
	var tags []language.Tag
	for _, p := range prefs {
		if p == "" {
			continue
		}
		parsed, _, err := language.ParseAcceptLanguage(p)
		if err != nil {
			continue
		}
		tags = append(tags, parsed...)
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Translate returns msg in the given language, or msg itself when no translation exists.
func Translate(tag language.Tag, msg string) string {
	return message.NewPrinter(tag, message.Catalog(cat)).Sprintf(msg)
}
