package cache

import "strings"

// Lesson namespace key layout. A course's lesson list lives under
// CourseLessonsKey; every lesson in that list also gets a LessonIndexKey entry
// so a lesson write can find the list it belongs to.

// CourseLessonsKey is the key of a course's lesson list
func CourseLessonsKey(courseID string) string {
	return "course:" + courseID + ":lessons"
}

// LessonIndexKey marks lessonID as a member of courseID's lesson list
func LessonIndexKey(courseID, lessonID string) string {
	return "course:" + courseID + ":lesson:" + lessonID
}

// indexedCourse returns the course of a LessonIndexKey naming lessonID
func indexedCourse(key, lessonID string) (string, bool) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 || parts[0] != "course" || parts[2] != "lesson" || parts[3] != lessonID {
		return "", false
	}
	return parts[1], true
}

func isLessonList(key string) bool {
	return strings.HasPrefix(key, "course:") && strings.HasSuffix(key, ":lessons")
}
