package policy

/*
Файл enforcer.go - правила доступа к записи робота.

Чистые функции без побочных эффектов. Иерархия: owner > authority > операторы >
держатели credential-ов. Кто может администрировать запись и кто может исполнять
команду - два разных вопроса: исполнение решается только credential-ом.
*/

import "github.com/xela07ax/roby-guard/internal/domain"

// CanAdminister: owner или authority. Ротация корня, операторы, статус, e-stop.
func CanAdminister(robot *domain.Robot, actor domain.Pubkey) bool {
	return actor == robot.Owner || actor == robot.Authority
}

// CanOwn: только owner. Передача владения.
func CanOwn(robot *domain.Robot, actor domain.Pubkey) bool {
	return actor == robot.Owner
}

// IsAuthority: точное совпадение с authority. Resume и передача authority.
func IsAuthority(robot *domain.Robot, actor domain.Pubkey) bool {
	return actor == robot.Authority
}

// CanIssue совпадает с CanAdminister: выпуск и отзыв credential-ов.
func CanIssue(robot *domain.Robot, actor domain.Pubkey) bool {
	return CanAdminister(robot, actor)
}

// PermissionSufficient: для исполнения нужен уровень строго выше Observer.
func PermissionSufficient(level domain.PermissionLevel) bool {
	return level > domain.PermissionObserver
}

// CommandAllowed добавляет к PermissionSufficient строгий режим:
// EmergencyStop и UpdateConfig требуют Administrator и выше.
func CommandAllowed(level domain.PermissionLevel, cmd domain.CommandType, strict bool) bool {
	if !PermissionSufficient(level) {
		return false
	}
	if strict && cmd.Privileged() {
		return level >= domain.PermissionAdministrator
	}
	return true
}
