package service

import (
	"context"
	"log"
	"strings"

	"rmscall/internal/domain"
	"rmscall/internal/platform"
)

const (
	PermissionReadMediaAudio      = "android.permission.READ_MEDIA_AUDIO"
	PermissionReadExternalStorage = "android.permission.READ_EXTERNAL_STORAGE"
	PermissionReadPhoneState      = "android.permission.READ_PHONE_STATE"
	PermissionReadCallLog         = "android.permission.READ_CALL_LOG"

	// с Android 13 (SDK 33) доступ к аудио выдается отдельным разрешением
	mediaPermissionsSDK = 33
)

// PermissionService - проверка runtime-разрешений перед запуском конвейера
type PermissionService struct {
	os         string
	sdkVersion int
	prompter   platform.Prompter
}

func NewPermissionService(osName string, sdkVersion int, prompter platform.Prompter) *PermissionService {
	return &PermissionService{
		os:         strings.ToLower(osName),
		sdkVersion: sdkVersion,
		prompter:   prompter,
	}
}

// PermissionsFor переводит абстрактные возможности в имена разрешений платформы без повторов
func (s *PermissionService) PermissionsFor(caps []domain.Capability) []string {
	seen := make(map[string]bool)
	perms := make([]string, 0, len(caps))
	for _, c := range caps {
		var name string
		switch c {
		case domain.CapabilityStorageRead, domain.CapabilityAudioMedia:
			if s.sdkVersion >= mediaPermissionsSDK {
				name = PermissionReadMediaAudio
			} else {
				name = PermissionReadExternalStorage
			}
		case domain.CapabilityPhoneState:
			name = PermissionReadPhoneState
		case domain.CapabilityCallLog:
			name = PermissionReadCallLog
		default:
			log.Printf("[PermissionService] Unknown capability %q ignored", c)
			continue
		}
		if !seen[name] {
			seen[name] = true
			perms = append(perms, name)
		}
	}
	return perms
}

// EnsurePermissions запрашивает все нужные разрешения.
// true только если выданы все; частичная выдача - отказ.
func (s *PermissionService) EnsurePermissions(ctx context.Context, caps []domain.Capability) (bool, error) {
	if s.os != "android" {
		return true, nil
	}

	granted := true
	for _, perm := range s.PermissionsFor(caps) {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		ok, err := s.prompter.Request(ctx, perm)
		if err != nil {
			log.Printf("[PermissionService] Request for %s failed, treating as denied: %v", perm, err)
			ok = false
		}
		if !ok {
			log.Printf("[PermissionService] Permission %s denied", perm)
			granted = false
		}
	}

	return granted, nil
}
